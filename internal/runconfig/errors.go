package runconfig

import "errors"

// Ошибки документа конфигурации.
var (
	// ErrMalformedConfig — нет обязательного глобального поля или секция линии некорректна.
	ErrMalformedConfig = errors.New("malformed config")

	// ErrInvalidFieldType — значение не относится к словарю булевых значений.
	ErrInvalidFieldType = errors.New("invalid field type")

	// ErrRevisionConflict — документ на диске изменён после загрузки.
	ErrRevisionConflict = errors.New("config revision conflict")
)
