// Command npmgo is a thin driver over the resolver/builder/reifier
// library: it exists to exercise the internal packages end to end, the
// way the teacher's examples/go/*/main.go programs exercise deps.dev's
// resolve library, not to carry any resolution logic of its own.
package main

func main() {
	Execute()
}
