// Package orchestrator проводит один документ конфигурации через все шаги
// предобработки и передаёт units на выполнение.
//
// Orchestrator отвечает за:
//   - Однократную отправку: submitted и has_error проверяются под
//     файловой блокировкой документа
//   - Построение дерева вывода и фиксацию new_location
//   - Разрешение DEM; любая ошибка здесь отменяет всю отправку
//   - Сохранение submitted до начала отправки units
//   - Эмиссию статуса и уведомление о принятии run
//   - Отправку units с ограниченным параллелизмом, где отказ одного
//     unit не мешает остальным
package orchestrator
