// Package runconfig — типизированное представление документа конфигурации run.
//
// Документ — INI-файл в формате ConfigParser: секция [DEFAULT] с глобальными
// полями и флагами состояния, и по одной секции на каждую линию.
// Документ — единственная долговременная запись о прогрессе run, поэтому
// всякая запись выполняется атомарно (temp-файл + rename) и проверяет
// ревизию документа (compare-and-swap).
package runconfig
