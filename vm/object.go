package vm

// Object is a record with string keys kept in insertion order.
type Object struct {
	keys   []string
	values []Value
	index  map[string]int
}

// Len returns the number of fields.
func (o *Object) Len() int { return len(o.keys) }

// Keys returns the field names in order. Callers must not modify the slice.
func (o *Object) Keys() []string { return o.keys }

// Get returns the value of a field.
func (o *Object) Get(name string) (Value, bool) {
	i, ok := o.index[name]
	if !ok {
		return Null, false
	}
	return o.values[i], true
}

// Set assigns a field, appending it if it does not exist yet.
func (o *Object) Set(name string, v Value) {
	if i, ok := o.index[name]; ok {
		o.values[i] = v
		return
	}
	if o.index == nil {
		o.index = make(map[string]int)
	}
	o.index[name] = len(o.keys)
	o.keys = append(o.keys, name)
	o.values = append(o.values, v)
}

// Has reports whether a field exists.
func (o *Object) Has(name string) bool {
	_, ok := o.index[name]
	return ok
}

// At returns the i-th field in order.
func (o *Object) At(i int) (string, Value) {
	return o.keys[i], o.values[i]
}
