package metapb

type TabletsByStartKeySlice []*Tablet

func (t TabletsByStartKeySlice) Len() int {
	return len(t)
}

func (t TabletsByStartKeySlice) Swap(i int, j int) {
	t[i], t[j] = t[j], t[i]
}

func (t TabletsByStartKeySlice) Less(i int, j int) bool {
	return Compare(t[i].GetStartKey(), t[j].GetStartKey()) < 0
}
