package uploader

import "sync"

// progress считает процент как 1 + floor(done/total*98) в пределах [1, 99].
// Значение не убывает, 100 сообщается только после подтверждения сервером.
type progress struct {
	mu     sync.Mutex
	total  int
	done   int
	last   int
	report func(int)
}

func newProgress(total int, report func(int)) *progress {
	if total < 1 {
		total = 1
	}
	return &progress{total: total, report: report}
}

func percent(done, total int) int {
	pct := 1 + done*98/total
	return max(1, min(pct, 99))
}

func (p *progress) start() {
	p.emit(1)
}

func (p *progress) partDone() {
	p.mu.Lock()
	p.done++
	pct := percent(p.done, p.total)
	p.mu.Unlock()
	p.emit(pct)
}

func (p *progress) finish() {
	p.emit(100)
}

func (p *progress) emit(pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pct <= p.last {
		return
	}
	p.last = pct
	if p.report != nil {
		p.report(pct)
	}
}
