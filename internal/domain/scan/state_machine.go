// Пакет scan — конечный автомат состояний одного сканирования.
//
// Жизненный цикл: idle → resolving → walking → completing → done.
// Из walking возможны терминальные переходы cancelled и failed;
// из resolving — failed. Терминальные состояния переходов не имеют.
//
// Потокобезопасен через sync.RWMutex.
package scan

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние сканирования.
type State string

const (
	StateIdle       State = "idle"
	StateResolving  State = "resolving"
	StateWalking    State = "walking"
	StateCompleting State = "completing"
	StateDone       State = "done"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateIdle:       {StateResolving: true},
	StateResolving:  {StateWalking: true, StateFailed: true, StateCancelled: true},
	StateWalking:    {StateCompleting: true, StateCancelled: true, StateFailed: true},
	StateCompleting: {StateDone: true, StateFailed: true},
	StateDone:       {},
	StateCancelled:  {},
	StateFailed:     {},
}

// StateMachine — конечный автомат состояний сканирования.
type StateMachine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
}

// NewStateMachine создаёт автомат в состоянии idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		history: make([]TransitionRecord, 0),
	}
}

// Current возвращает текущее состояние.
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// IsTerminal возвращает true для done, cancelled и failed.
func (sm *StateMachine) IsTerminal() bool {
	switch sm.Current() {
	case StateDone, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода в целевое состояние.
func (sm *StateMachine) CanTransitionTo(target State) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	transitions, ok := validTransitions[sm.current]
	if !ok {
		return false
	}
	return transitions[target]
}

// TransitionTo выполняет переход в целевое состояние.
// reason — причина перехода (для терминальных состояний).
func (sm *StateMachine) TransitionTo(target State, reason string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	transitions, ok := validTransitions[sm.current]
	if !ok || !transitions[target] {
		return fmt.Errorf("переход %s → %s недопустим", sm.current, target)
	}

	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target

	return nil
}

// History возвращает историю переходов (копия).
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}
