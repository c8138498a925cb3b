package exec

import (
	"fmt"
	"io"
)

// Dump writes a GraphViz dot rendering of the taskflow, recursing into
// composed modules. Conditional edges are dashed and labelled with their
// branch index.
func (tf *Taskflow) Dump(w io.Writer) error {
	d := &dumper{w: w, ids: make(map[*taskNode]string)}
	d.printf("digraph Taskflow {\n")
	d.cluster(tf)
	d.printf("}\n")
	return d.err
}

type dumper struct {
	w        io.Writer
	ids      map[*taskNode]string
	clusters int
	nodes    int
	err      error
}

func (d *dumper) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func (d *dumper) id(t *taskNode) string {
	id, ok := d.ids[t]
	if !ok {
		id = fmt.Sprintf("p%d", d.nodes)
		d.nodes++
		d.ids[t] = id
	}
	return id
}

func (d *dumper) cluster(tf *Taskflow) {
	d.printf("subgraph cluster_%d {\n", d.clusters)
	d.clusters++
	d.printf("label=%q;\n", "Taskflow: "+tf.name)

	for _, t := range tf.tasks {
		switch t.kind {
		case taskCondition, taskMultiCondition:
			d.printf("%s [label=%q shape=diamond];\n", d.id(t), t.name)
		case taskModule:
			d.printf("%s [label=%q shape=box3d];\n", d.id(t), t.name)
		default:
			d.printf("%s [label=%q];\n", d.id(t), t.name)
		}
	}
	for _, t := range tf.tasks {
		for _, s := range t.strong {
			d.printf("%s -> %s;\n", d.id(t), d.id(s))
		}
		for i, s := range t.weak {
			d.printf("%s -> %s [style=dashed label=%q];\n", d.id(t), d.id(s), fmt.Sprintf("%d", i))
		}
	}
	for _, t := range tf.tasks {
		if t.kind == taskModule {
			d.cluster(t.module)
		}
	}
	d.printf("}\n")
}
