// Package status создаёт артефакты статуса units в дереве run
// и начальные записи в status DB.
//
// Для каждого объявленного unit пишется статус-файл:
//
//	<unit> = waiting          unit будет отправлен
//	<unit> = not processing   unit объявлен, но не обрабатывается
//
// Для отправляемых units (основная линия и каждое активное расширение)
// дополнительно создаётся пустой лог и запись "Waiting to process".
package status
