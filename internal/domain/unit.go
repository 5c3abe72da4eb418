package domain

// WorkUnit — то, что драйвер передаёт backend'у: одна линия с флагами
// обработки основной линии и её расширений.
type WorkUnit struct {
	// Line — имя линии (секции конфигурации).
	Line string

	// RunMain — обрабатывать основную линию.
	RunMain bool

	// RunExtension — обрабатывать хотя бы одно активное расширение.
	RunExtension bool

	// Extensions — идентификаторы активных расширений (L1_ratio, ...).
	Extensions []string
}

// Runnable сообщает, есть ли что отправлять.
func (u WorkUnit) Runnable() bool {
	return u.RunMain || u.RunExtension
}
