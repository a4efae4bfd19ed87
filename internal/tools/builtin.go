package tools

// Builtins returns every built-in tool.
func Builtins() []Tool {
	var all []Tool
	all = append(all, FileTools()...)
	all = append(all, SystemTools()...)
	all = append(all, WindowTools()...)
	all = append(all, MemoryTools()...)
	all = append(all, BrowserTools()...)
	return all
}

// NewDefaultRegistry returns a registry holding the built-in tools.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(Builtins()...)
	return r
}
