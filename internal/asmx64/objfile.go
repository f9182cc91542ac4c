package asmx64

import "encoding/binary"

// WriteObject serialises a finished routine as a minimal relocatable
// ELF64 object exposing a single global text symbol, the form
// spec.md §4.6 calls "an object file (COFF or equivalent)". Only the
// subset of ELF needed to link one symbol is produced: no relocations,
// since the routine is fully resolved machine code with no external
// references.
func WriteObject(symbol string, code []byte) []byte {
	const (
		ehsize    = 64
		shentsize = 64
		symsize   = 24
	)

	// Section layout: [0]=null, [1]=.text, [2]=.shstrtab, [3]=.symtab, [4]=.strtab
	shstrtab := []byte{0}
	textNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".text\x00")...)
	shstrtabNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".shstrtab\x00")...)
	symtabNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".symtab\x00")...)
	strtabNameOff := len(shstrtab)
	shstrtab = append(shstrtab, []byte(".strtab\x00")...)

	strtab := []byte{0}
	symNameOff := len(strtab)
	strtab = append(strtab, []byte(symbol)...)
	strtab = append(strtab, 0)

	// Symbol table: null entry + one global function symbol bound to .text.
	symtab := make([]byte, symsize*2)
	binary.LittleEndian.PutUint32(symtab[symsize+0:], uint32(symNameOff))
	symtab[symsize+4] = 0x12 // STB_GLOBAL<<4 | STT_FUNC
	symtab[symsize+5] = 0    // st_other
	binary.LittleEndian.PutUint16(symtab[symsize+6:], 1) // st_shndx = .text
	binary.LittleEndian.PutUint64(symtab[symsize+8:], 0) // st_value
	binary.LittleEndian.PutUint64(symtab[symsize+16:], uint64(len(code)))

	textOff := ehsize
	shstrtabOff := textOff + len(code)
	symtabOff := align8(shstrtabOff + len(shstrtab))
	strtabOff := symtabOff + len(symtab)
	shoffStart := align8(strtabOff + len(strtab))

	buf := make([]byte, shoffStart)
	copy(buf[textOff:], code)
	copy(buf[shstrtabOff:], shstrtab)
	copy(buf[symtabOff:], symtab)
	copy(buf[strtabOff:], strtab)

	var sections []byte
	sections = append(sections, shdr(0, 0, 0, 0, 0, 0, 0, 0)...)
	sections = append(sections, shdr(uint32(textNameOff), 1, 0x6, uint64(textOff), uint64(len(code)), 0, 0, 16)...)
	sections = append(sections, shdr(uint32(shstrtabNameOff), 3, 0, uint64(shstrtabOff), uint64(len(shstrtab)), 0, 0, 1)...)
	sections = append(sections, shdrSym(uint32(symtabNameOff), uint64(symtabOff), uint64(len(symtab)), uint32(strtabIndex), 1, symsize)...)
	sections = append(sections, shdr(uint32(strtabNameOff), 3, 0, uint64(strtabOff), uint64(len(strtab)), 0, 0, 1)...)

	shoff := len(buf)
	buf = append(buf, sections...)

	eh := elfHeader(uint64(shoff), numSections)
	copy(buf[0:ehsize], eh)
	return buf
}

const strtabIndex = 4
const numSections = 5

func align8(n int) int { return (n + 7) &^ 7 }

func elfHeader(shoff uint64, shnum uint16) []byte {
	h := make([]byte, 64)
	copy(h[0:4], []byte{0x7f, 'E', 'L', 'F'})
	h[4] = 2 // ELFCLASS64
	h[5] = 1 // little-endian
	h[6] = 1 // EI_VERSION
	binary.LittleEndian.PutUint16(h[16:], 1)  // e_type = ET_REL
	binary.LittleEndian.PutUint16(h[18:], 62) // e_machine = EM_X86_64
	binary.LittleEndian.PutUint32(h[20:], 1)  // e_version
	binary.LittleEndian.PutUint64(h[24:], 0)  // e_entry
	binary.LittleEndian.PutUint64(h[32:], 0)  // e_phoff
	binary.LittleEndian.PutUint64(h[40:], shoff)
	binary.LittleEndian.PutUint16(h[52:], 64) // e_ehsize
	binary.LittleEndian.PutUint16(h[58:], 64) // e_shentsize
	binary.LittleEndian.PutUint16(h[60:], shnum)
	binary.LittleEndian.PutUint16(h[62:], 2) // e_shstrndx = .shstrtab
	return h
}

func shdr(name, typ uint32, flags, offset, size uint64, link, info uint32, align uint64) []byte {
	s := make([]byte, 64)
	binary.LittleEndian.PutUint32(s[0:], name)
	binary.LittleEndian.PutUint32(s[4:], typ)
	binary.LittleEndian.PutUint64(s[8:], flags)
	binary.LittleEndian.PutUint64(s[16:], 0) // sh_addr
	binary.LittleEndian.PutUint64(s[24:], offset)
	binary.LittleEndian.PutUint64(s[32:], size)
	binary.LittleEndian.PutUint32(s[40:], link)
	binary.LittleEndian.PutUint32(s[44:], info)
	binary.LittleEndian.PutUint64(s[48:], align)
	binary.LittleEndian.PutUint64(s[56:], 0) // sh_entsize
	return s
}

func shdrSym(name uint32, offset, size uint64, link, info uint32, entsize uint64) []byte {
	s := shdr(name, 2 /* SHT_SYMTAB */, 0, offset, size, link, info, 8)
	binary.LittleEndian.PutUint64(s[56:], entsize)
	return s
}
