// Package validation содержит проверки входных идентификаторов и адресов.
package validation

import "strings"

const maxIDLength = 64

// IsValidID проверяет, что идентификатор пользователя, задания или события
// непустой, не длиннее 64 символов и не содержит пробельных символов.
func IsValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}

	return !strings.ContainsAny(id, " \t\n\r")
}

// IsValidWallet проверяет формат адреса кошелька для выплаты:
// префикс 0x и ровно 40 шестнадцатеричных символов.
func IsValidWallet(addr string) bool {
	if len(addr) != 42 {
		return false
	}
	if addr[0] != '0' || (addr[1] != 'x' && addr[1] != 'X') {
		return false
	}

	for _, c := range addr[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}

	return true
}
