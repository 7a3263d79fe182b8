// Package sanitizer provides input normalization applied before validation and storage.
//
// All normalization functions are idempotent - applying them multiple times produces
// the same result. Functions handle invalid input gracefully, typically by returning
// the input unchanged or an empty value, and leave rejection to the validators.
//
// Normalization includes:
//   - Strings: Collapse whitespace, trim leading/trailing spaces
//   - Timezones: Trim, collapse repeated separators
//   - Clock times: Zero-pad "9:00" to "09:00"
//   - Dates and day numbers: Remove duplicates and empty values, sort ascending
//   - Numbers: Clamp to valid ranges
package sanitizer
