// Package backend передаёт units на выполнение.
//
// Backend выбирается один раз по имени при старте (New) и дальше
// используется драйвером через интерфейс Backend:
//
//   - local — синхронный запуск обработчика линии;
//   - qsub, bsub — постановка в очередь grid-планировщика;
//   - amqp — публикация unit для удалённого пула обработчиков;
//   - k8s — Kubernetes Job на каждый unit.
//
// Grid-варианты возвращаются, как только планировщик принял задачу.
// Завершение наблюдается через status DB, а не через Submit.
package backend
