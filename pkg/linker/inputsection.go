package linker

// InputSection is a section of a relocatable object as far as symbol
// resolution cares: a name, its header, and whether a claimed COMDAT
// group killed it. Layout and relocation belong to the writer.
type InputSection struct {
	File *ObjectFile
	Name string

	ShdrIdx int64
	IsAlive bool
}

func NewInputSection(file *ObjectFile, name string, shdrIdx int64) *InputSection {
	return &InputSection{
		File:    file,
		Name:    name,
		ShdrIdx: shdrIdx,
		IsAlive: true,
	}
}

func (i *InputSection) Shdr() *Shdr {
	return &i.File.ElfSections[i.ShdrIdx]
}
