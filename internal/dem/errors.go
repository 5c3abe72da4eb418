package dem

import (
	"errors"

	"github.com/shaiso/scops/internal/command"
)

// Ошибки разрешения DEM. Все они фатальны для run.
var (
	// ErrMissingDataset — обещанный пользователем DEM не найден.
	ErrMissingDataset = errors.New("dem missing")

	// ErrDatasetCoverage — DEM не покрывает навигацию.
	ErrDatasetCoverage = errors.New("dem does not cover navigation")

	// ErrGeneration — не удалось сгенерировать DEM.
	ErrGeneration = errors.New("dem generation failed")

	// ErrNoNavigation — нет nav-файлов для генерации или проверки.
	ErrNoNavigation = errors.New("no navigation files")

	// ErrBadToolOutput — внешняя утилита вернула неразборчивый ответ.
	ErrBadToolOutput = errors.New("unexpected tool output")

	// ErrTimeout — внешняя утилита не уложилась в срок.
	ErrTimeout = command.ErrTimeout
)
