// Package dem гарантирует, что у run есть DEM, покрывающий навигацию.
//
// Состояния:
//  1. dem_name задан и файл существует — к проверке покрытия.
//  2. Иначе, если DEM обещан пользователем (ftp_dem), — фатальная ошибка:
//     has_error, ErrMissingDataset. Подмену не генерируем.
//     Иначе DEM генерируется в <output>/dem из источника по навигации.
//  3. Если DEM загружен пользователем и force_dem не задан —
//     bbox навигации должен лежать внутри bbox DEM, иначе has_error,
//     уведомление dem_coverage и ErrDatasetCoverage.
//
// Мозаики оператора считаются корректными и не проверяются.
package dem
