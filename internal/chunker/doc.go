// Package chunker turns document text into an ordered sequence of
// bounded chunks.
//
// Two paths exist. The deterministic splitter (Split) is canonical: it
// works on blank-line paragraph blocks, merges section headers forward
// and accumulates blocks up to a token budget. The semantic path
// (SplitSemantic) windows the text and asks the text-generation
// service to propose chunk boundaries; every failure in that path
// lands back on the deterministic splitter, so output is never empty
// for non-empty input.
//
// Token counts are approximated as len(text)/4. The approximation is
// deliberately coarse; the algorithms only need it to be monotonic and
// consistent.
package chunker
