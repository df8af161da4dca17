package spatial

import "sync/atomic"

// Notifier recebe o aviso de que o estado mudou
type Notifier interface {
	Notify()
}

// NotifierFunc adapta uma função para Notifier
type NotifierFunc func()

func (f NotifierFunc) Notify() { f() }

// Trigger é um sinal "sujo" de uma posição: várias mutações entre dois
// redesenhos viram um único sinal pendente.
type Trigger struct {
	ch        chan struct{}
	notified  atomic.Uint64
	coalesced atomic.Uint64
}

// NewTrigger cria um gatilho sem sinal pendente
func NewTrigger() *Trigger {
	return &Trigger{ch: make(chan struct{}, 1)}
}

// Notify marca um redesenho pendente. Nunca bloqueia.
func (t *Trigger) Notify() {
	t.notified.Add(1)
	select {
	case t.ch <- struct{}{}:
	default:
		t.coalesced.Add(1)
	}
}

// C expõe o sinal para quem prefere esperar em select
func (t *Trigger) C() <-chan struct{} {
	return t.ch
}

// Consume limpa o sinal pendente e informa se havia um.
// Deve ser chamado antes de desenhar, para que mutações durante o desenho
// agendem mais um redesenho.
func (t *Trigger) Consume() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Pending informa se há redesenho pendente sem consumi-lo
func (t *Trigger) Pending() bool {
	return len(t.ch) > 0
}

// Stats retorna quantos avisos chegaram e quantos foram agrupados
func (t *Trigger) Stats() (notified, coalesced uint64) {
	return t.notified.Load(), t.coalesced.Load()
}
