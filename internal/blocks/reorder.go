package blocks

// Move removes the element at src and re-inserts it at dst, returning a
// new slice. Out-of-range indices or src == dst are a no-op (the drag
// didn't land anywhere useful); the input is returned unchanged.
func Move(seq []Block, src, dst int) []Block {
	if src == dst || src < 0 || src >= len(seq) || dst < 0 || dst >= len(seq) {
		return seq
	}

	out := make([]Block, 0, len(seq))
	out = append(out, seq[:src]...)
	out = append(out, seq[src+1:]...)

	out = append(out[:dst], append([]Block{seq[src]}, out[dst:]...)...)
	return out
}

// Renumber assigns OrderIndex = position for every block, producing the
// contiguous 0..n-1 sequence the store persists after a reorder or a
// post-delete compaction. It returns the ids of blocks whose index
// changed, in sequence order.
func Renumber(seq []Block) []string {
	var changed []string
	for i := range seq {
		if seq[i].OrderIndex != i {
			seq[i].OrderIndex = i
			changed = append(changed, seq[i].ID)
		}
	}
	return changed
}

// IndexOf returns the position of the block with the given id, or -1.
func IndexOf(seq []Block, id string) int {
	for i := range seq {
		if seq[i].ID == id {
			return i
		}
	}
	return -1
}
