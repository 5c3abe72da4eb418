package domain

// Reason — причина уведомления.
type Reason string

const (
	// ReasonAccepted — run принят в обработку (status email).
	ReasonAccepted Reason = ""

	// ReasonDEMCoverage — загруженный DEM не покрывает навигацию.
	ReasonDEMCoverage Reason = "dem_coverage"

	// ReasonDEMMissing — обещанный пользователем DEM не найден.
	ReasonDEMMissing Reason = "dem_missing"
)

// Notification — исходящее сообщение пользователю.
type Notification struct {
	Recipient      string
	OutputLocation string
	ProjectCode    string
	Reason         Reason
}

// IsError сообщает, что уведомление об ошибке предобработки.
func (n Notification) IsError() bool {
	return n.Reason != ReasonAccepted
}
