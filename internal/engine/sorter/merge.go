package sorter

// entry is one record waiting to be ordered.
type entry struct {
	index int
	depth float32
	key   uint64
	seq   int
}

type lessOrEqual func(a, b *entry) bool

// backToFront orders by decreasing view depth.
func backToFront(a, b *entry) bool {
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	return a.seq <= b.seq
}

// byStateThenDepth orders by state key, then front to back.
func byStateThenDepth(a, b *entry) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	if a.depth != b.depth {
		return a.depth < b.depth
	}
	return a.seq <= b.seq
}

// mergeSort sorts items in place using buf as scratch space and returns the
// scratch slice so its capacity is kept. Bottom-up and stable; no
// allocations once buf has reached the high-water mark.
func mergeSort(items, buf []entry, le lessOrEqual) []entry {
	n := len(items)
	if n <= 1 {
		return buf
	}
	if cap(buf) < n {
		buf = make([]entry, n)
	}
	buf = buf[:n]

	a, b := items, buf
	swapped := false
	for width := 1; width < n; width *= 2 {
		for i := 0; i < n; i += 2 * width {
			mid := min(i+width, n)
			hi := min(i+2*width, n)
			mergeRun(a, b, i, mid, hi, le)
		}
		a, b = b, a
		swapped = !swapped
	}
	if swapped {
		copy(items, buf)
	}
	return buf
}

// mergeRun merges the sorted runs [lo, mid) and [mid, hi) of src into dst.
func mergeRun(src, dst []entry, lo, mid, hi int, le lessOrEqual) {
	i, j, k := lo, mid, lo
	for i < mid && j < hi {
		if le(&src[i], &src[j]) {
			dst[k] = src[i]
			i++
		} else {
			dst[k] = src[j]
			j++
		}
		k++
	}
	for i < mid {
		dst[k] = src[i]
		i++
		k++
	}
	for j < hi {
		dst[k] = src[j]
		j++
		k++
	}
}
