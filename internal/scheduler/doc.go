// Package scheduler периодически обходит каталог документов конфигурации
// и запускает драйвер для тех, что ещё не отправлены.
//
// Структура:
//   - scheduler.go — Watcher (Tick, Start)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	w, err := scheduler.New(scheduler.Config{
//	    ConfigDir: "/data/configs",
//	    Schedule:  "*/5 * * * *",
//	    Runner:    orch,
//	    Logger:    logger,
//	})
//
//	// Блокирует до отмены ctx: тик по cron и по изменению файлов каталога.
//	err = w.Start(ctx)
//
// Тики не пересекаются: события, пришедшие во время тика, сливаются в один
// следующий тик. Однократность отправки между процессами обеспечивает
// блокировка документа в orchestrator.
package scheduler
