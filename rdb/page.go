package rdb

// Page 分页参数，Offset/Limit 可直接用于 LimitOffset
type Page struct {
	Total       int64
	Index       int
	Size        int
	PageCount   int
	Offset      int
	Limit       int
	HasNext     bool
	HasPrevious bool
}

// NewPage 页码从 1 开始，超出范围时回到第一页且 Limit 为 0
func NewPage(total int64, index, size int) *Page {
	if size <= 0 {
		size = 10
	}
	if index < 1 {
		index = 1
	}
	p := &Page{Total: total, Size: size}
	p.PageCount = int(total / int64(size))
	if total%int64(size) > 0 {
		p.PageCount++
	}
	if total == 0 || index > p.PageCount {
		p.Index = 1
		p.Offset = 0
		p.Limit = 0
	} else {
		p.Index = index
		p.Offset = size * (index - 1)
		p.Limit = size
	}
	p.HasNext = p.Index < p.PageCount
	p.HasPrevious = p.Index > 1
	return p
}

// Option 转换为查询条件
func (p *Page) Option() FindOption {
	return LimitOffset(p.Offset, p.Limit)
}
