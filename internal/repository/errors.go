package repository

import "errors"

// ErrStatusConflict - условное обновление статуса не затронуло ни одной строки:
// запись уже перешла в другое состояние в параллельном запросе
var ErrStatusConflict = errors.New("status changed concurrently")

// Код ошибки PostgreSQL unique_violation
const uniqueViolation = "23505"
