package statmodel

import "fmt"

// Dataset is a collection of named, equal-length columns.
type Dataset struct {
	data  [][]Dtype
	names []string
	pos   map[string]int
}

// NewDataset returns a Dataset holding the given columns.  The columns are
// not copied.
func NewDataset(data [][]Dtype, names []string) Dataset {

	if len(data) != len(names) {
		msg := fmt.Sprintf("NewDataset: %d columns but %d names\n", len(data), len(names))
		panic(msg)
	}

	pos := make(map[string]int, len(names))
	for i, na := range names {
		pos[na] = i
	}

	return Dataset{
		data:  data,
		names: names,
		pos:   pos,
	}
}

// Data returns the columns of the dataset.
func (ds Dataset) Data() [][]Dtype {
	return ds.data
}

// Names returns the names of the columns.
func (ds Dataset) Names() []string {
	return ds.names
}

// NumObs returns the number of rows.
func (ds Dataset) NumObs() int {
	if len(ds.data) == 0 {
		return 0
	}
	return len(ds.data[0])
}

// Pos returns the position of the named column, or -1 if it is absent.
func (ds Dataset) Pos(name string) int {
	if k, ok := ds.pos[name]; ok {
		return k
	}
	return -1
}

// Get returns the named column, or nil if it is absent.
func (ds Dataset) Get(name string) []Dtype {
	if k, ok := ds.pos[name]; ok {
		return ds.data[k]
	}
	return nil
}
