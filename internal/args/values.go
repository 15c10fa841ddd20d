package args

// Values holds bound arguments by parameter name.
type Values map[string]any

// Has reports whether name was bound, either from input or a default.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// Int returns the int bound to name, or 0.
func (v Values) Int(name string) int {
	n, _ := v[name].(int)
	return n
}

// Float returns the float bound to name, or 0.
func (v Values) Float(name string) float64 {
	f, _ := v[name].(float64)
	return f
}

// Bool returns the bool bound to name, or false.
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}

// String returns the string bound to name, or "".
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}
