package registry

type occupant struct {
	conn Conn
	name string
}

// Room is one chat channel. Occupants are kept in join order.
// A Room is only read or mutated while the owning Registry's lock is held.
type Room struct {
	id        string
	occupants []occupant
	index     map[Conn]int
}

func newRoom(id string) *Room {
	return &Room{
		id:    id,
		index: make(map[Conn]int),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.id
}

func (r *Room) add(conn Conn, name string) {
	r.index[conn] = len(r.occupants)
	r.occupants = append(r.occupants, occupant{conn: conn, name: name})
}

func (r *Room) has(conn Conn) bool {
	_, ok := r.index[conn]
	return ok
}

func (r *Room) rename(conn Conn, name string) (string, bool) {
	i, ok := r.index[conn]
	if !ok {
		return "", false
	}
	old := r.occupants[i].name
	r.occupants[i].name = name
	return old, true
}

func (r *Room) remove(conn Conn) (string, bool) {
	i, ok := r.index[conn]
	if !ok {
		return "", false
	}
	name := r.occupants[i].name

	copy(r.occupants[i:], r.occupants[i+1:])
	r.occupants[len(r.occupants)-1] = occupant{}
	r.occupants = r.occupants[:len(r.occupants)-1]

	delete(r.index, conn)
	for j := i; j < len(r.occupants); j++ {
		r.index[r.occupants[j].conn] = j
	}
	return name, true
}

func (r *Room) names() []string {
	out := make([]string, len(r.occupants))
	for i, o := range r.occupants {
		out[i] = o.name
	}
	return out
}

func (r *Room) conns(exclude Conn) []Conn {
	out := make([]Conn, 0, len(r.occupants))
	for _, o := range r.occupants {
		if exclude != nil && o.conn == exclude {
			continue
		}
		out = append(out, o.conn)
	}
	return out
}

func (r *Room) size() int {
	return len(r.occupants)
}
