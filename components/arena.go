package components

import (
	"github.com/solarlune/resolv"
	"github.com/yohamta/donburi"
)

// ArenaData is the singleton holding the collision space.
type ArenaData struct {
	Name  string
	Space *resolv.Space
}

var Arena = donburi.NewComponentType[ArenaData]()
