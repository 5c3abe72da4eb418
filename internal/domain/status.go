package domain

// Phase — фаза обработки одного run драйвером.
//
// Жизненный цикл:
//
//	NEW → TREE_READY → DATASET_READY → STATUS_EMITTED → DISPATCHED → DONE
//	  ↘ ERRORED (из любой фазы, как только выставлен has_error)
type Phase string

const (
	PhaseNew           Phase = "NEW"
	PhaseTreeReady     Phase = "TREE_READY"
	PhaseDatasetReady  Phase = "DATASET_READY"
	PhaseStatusEmitted Phase = "STATUS_EMITTED"
	PhaseDispatched    Phase = "DISPATCHED"
	PhaseDone          Phase = "DONE"
	PhaseErrored       Phase = "ERRORED"
)

// IsTerminal возвращает true, если фаза финальная.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseDone, PhaseErrored:
		return true
	default:
		return false
	}
}

// FileState — состояние unit в статус-файле (<unit> = <state>).
type FileState string

const (
	// FileStateWaiting — unit будет отправлен на обработку.
	FileStateWaiting FileState = "waiting"

	// FileStateNotProcessing — unit объявлен, но не обрабатывается.
	FileStateNotProcessing FileState = "not processing"
)

// RecordState — человекочитаемое состояние в status DB.
type RecordState string

const (
	// RecordStateWaiting — начальное состояние записи.
	// Дальше запись меняет backend/обработчик линии.
	RecordStateWaiting RecordState = "Waiting to process"
)
