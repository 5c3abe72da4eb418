package domain

// StatusRecord — строка статуса unit в status DB.
//
// Движок создаёт только начальную запись (RecordStateWaiting, счётчики по нулям);
// обновляет её обработчик линии по мере выполнения.
type StatusRecord struct {
	RunID  string
	UnitID string
	State  RecordState

	// Счётчики прогресса.
	Stage    int
	Progress int
	Filesize int64
	Bands    int

	// Link — ссылка на страницу статуса unit.
	Link string

	// Вспомогательные счётчики.
	Zipsize    int64
	Downloaded int
}

// NewWaitingRecord создаёт начальную запись для unit.
func NewWaitingRecord(runID, unitID, link string) StatusRecord {
	return StatusRecord{
		RunID:  runID,
		UnitID: unitID,
		State:  RecordStateWaiting,
		Link:   link,
	}
}
