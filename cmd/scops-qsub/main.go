// scops-qsub — драйвер обработки гиперспектральных данных: готовит
// дерево вывода и DEM, публикует статус линий и отправляет линии
// на выбранный вычислительный backend.
//
// Использование:
//
//	scops-qsub --config FILE [--local] [--output DIR] [--json]
//	scops-qsub watch [--configs DIR] [--schedule CRON]
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/scops/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
