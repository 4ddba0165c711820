package ecs

// Parent points at the entity that owns this one.
type Parent struct {
	ID EntityID
}

// Children lists owned entities; DespawnRecursive follows it.
type Children struct {
	ids []EntityID
}

func (c *Children) IDs() []EntityID { return c.ids }

// SetParent makes child owned by parent, moving it from any previous parent.
func SetParent(w *World, child, parent EntityID) {
	if !w.Alive(child) || !w.Alive(parent) || child == parent {
		return
	}
	detach(w, child)
	Insert(w, child, Parent{ID: parent})
	ch, ok := Get[Children](w, parent)
	if !ok {
		ch = Insert(w, parent, Children{})
	}
	ch.ids = append(ch.ids, child)
}

// SpawnChild creates an entity owned by parent.
func SpawnChild(w *World, parent EntityID) EntityID {
	id := w.Spawn()
	SetParent(w, id, parent)
	return id
}

func detach(w *World, child EntityID) {
	p, ok := Get[Parent](w, child)
	if !ok {
		return
	}
	if ch, ok := Get[Children](w, p.ID); ok {
		for i, id := range ch.ids {
			if id == child {
				ch.ids = append(ch.ids[:i], ch.ids[i+1:]...)
				break
			}
		}
	}
	Components[Parent](w).Remove(child)
}
