package platform

import (
	"os/exec"
	"sync"
)

// ToolCheck answers whether the merge tool is on PATH. The lookup runs once
// per process; installing the tool later needs a restart.
type ToolCheck struct {
	tool     string
	lookPath func(string) (string, error)

	once sync.Once
	ok   bool
}

func NewToolCheck(tool string) *ToolCheck {
	return &ToolCheck{tool: tool, lookPath: exec.LookPath}
}

func (p *ToolCheck) HasMergeTool() bool {
	p.once.Do(func() {
		_, err := p.lookPath(p.tool)
		p.ok = err == nil
	})
	return p.ok
}

// Tool is the binary name being looked up.
func (p *ToolCheck) Tool() string {
	return p.tool
}
