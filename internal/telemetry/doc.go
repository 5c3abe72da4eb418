// Package telemetry обеспечивает наблюдаемость движка.
//
// Включает:
//   - logging.go — structured logging через slog (stderr + лог конфигурации)
//   - metrics.go — Prometheus метрики, выгружаемые в textfile
//
// scops-qsub — короткоживущий процесс, поэтому метрики не отдаются по HTTP,
// а записываются в файл для node-exporter textfile collector.
package telemetry
