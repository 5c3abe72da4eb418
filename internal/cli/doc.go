// Package cli реализует командную строку scops-qsub.
//
// # Обзор
//
// Корневая команда обрабатывает один документ конфигурации: собирает
// зависимости из файла настроек (status DB, брокер, backend,
// уведомления, зеркало статуса) и вызывает orchestrator.Run.
//
//	scops-qsub --config /cfg/GB16_00_2016_123.cfg [--local] [--output DIR]
//
// Подкоманда watch обходит каталог документов по cron-расписанию и при
// появлении новых файлов:
//
//	scops-qsub watch --configs /cfg --schedule "*/5 * * * *"
//
// # Вывод
//
// Сводка и логи пишутся в stderr, таблица units (или JSON с --json) в
// stdout. Лог каждого документа дублируется в <qsub_log_dir>/<name>_log.txt.
//
// Код выхода 0 означает успех или no-op (документ уже отправлен или
// помечен has_error), любой сбой даёт 1.
package cli
