package composite

// history 定长结果环，写满后覆盖最旧的记录
type history struct {
	buf  []*Result
	next int
	full bool
}

func newHistory(size int) *history {
	if size < 1 {
		size = 1
	}
	return &history{buf: make([]*Result, size)}
}

func (h *history) push(r *Result) {
	h.buf[h.next] = r
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// list 从旧到新返回
func (h *history) list() []*Result {
	if !h.full {
		return append([]*Result(nil), h.buf[:h.next]...)
	}
	out := make([]*Result, 0, len(h.buf))
	out = append(out, h.buf[h.next:]...)
	return append(out, h.buf[:h.next]...)
}

// resize 调整容量，保留最新的记录
func (h *history) resize(size int) {
	if size < 1 {
		size = 1
	}
	if size == len(h.buf) {
		return
	}
	items := h.list()
	if len(items) > size {
		items = items[len(items)-size:]
	}
	h.buf = make([]*Result, size)
	h.next, h.full = 0, false
	for _, r := range items {
		h.push(r)
	}
}
