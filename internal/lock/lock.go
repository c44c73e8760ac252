// Package lock реализует локальные блокировки по составному ключу.
//
// Блокировка действует в пределах одного процесса и защищает
// последовательность «прочитать-проверить-записать» от параллельных
// запросов для одной и той же пары (пользователь, задание). Гарантией
// корректности между процессами остаётся транзакция хранилища.
package lock

import "sync"

// Manager выдаёт блокировки по строковому ключу без ожидания:
// занятый ключ означает отказ, а не очередь.
type Manager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewManager создаёт пустой менеджер блокировок.
func NewManager() *Manager {
	return &Manager{
		held: make(map[string]struct{}),
	}
}

// TryAcquire пытается захватить ключ. Возвращает false, если ключ уже занят.
func (m *Manager) TryAcquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[key]; busy {
		return false
	}

	m.held[key] = struct{}{}
	return true
}

// Release освобождает ключ. Освобождение незанятого ключа безопасно.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.held, key)
}
