package engine

// SnakeSlot maps a 1-based overall pick number to its round and to the
// 1-based position, in draft order, of the team that owns it. Odd rounds run
// 1..n, even rounds run n..1.
func SnakeSlot(pick, teams int) (round, position int) {
	if pick < 1 || teams < 1 {
		return 0, 0
	}
	round = (pick-1)/teams + 1
	i := (pick-1)%teams + 1
	if round%2 == 1 {
		return round, i
	}
	return round, teams - i + 1
}

// TeamAt returns the id of the team that owns pick p.
func TeamAt(teams []TeamRecord, pick int) string {
	_, pos := SnakeSlot(pick, len(teams))
	if pos == 0 {
		return ""
	}
	return teams[pos-1].ID
}
