package linker

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"unicode"
)

type FileType = int8

const (
	FileTypeUnknown FileType = iota
	FileTypeEmpty   FileType = iota
	FileTypeObject  FileType = iota
	FileTypeDso     FileType = iota
	FileTypeAr      FileType = iota
	FileTypeThinAr  FileType = iota
	FileTypeBitcode FileType = iota
	FileTypeText    FileType = iota
)

func GetFileType(contents []byte) FileType {
	if len(contents) == 0 {
		return FileTypeEmpty
	}

	if CheckMagic(contents) {
		et := elf.Type(binary.LittleEndian.Uint16(contents[16:]))
		switch et {
		case elf.ET_REL:
			return FileTypeObject
		case elf.ET_DYN:
			return FileTypeDso
		}
		return FileTypeUnknown
	}

	if bytes.HasPrefix(contents, []byte("!<arch>\n")) {
		return FileTypeAr
	}
	if bytes.HasPrefix(contents, []byte("!<thin>\n")) {
		return FileTypeThinAr
	}
	if bytes.HasPrefix(contents, []byte("BC\xc0\xde")) {
		return FileTypeBitcode
	}

	isTextFile := func() bool {
		return len(contents) >= 4 &&
			unicode.IsPrint(rune(contents[0])) &&
			unicode.IsPrint(rune(contents[1])) &&
			unicode.IsPrint(rune(contents[2])) &&
			unicode.IsPrint(rune(contents[3]))
	}

	if isTextFile() {
		// LLVM IR assembly is the textual form of bitcode. It is
		// recognized by a leading "; ModuleID" comment, source_filename
		// line or target line; IR that starts any other way is text.
		if looksLikeIR(contents) {
			return FileTypeBitcode
		}
		return FileTypeText
	}

	return FileTypeUnknown
}

func looksLikeIR(contents []byte) bool {
	for _, prefix := range [][]byte{
		[]byte("; ModuleID"),
		[]byte("source_filename"),
		[]byte("target datalayout"),
		[]byte("target triple"),
	} {
		if bytes.HasPrefix(contents, prefix) {
			return true
		}
	}
	return false
}
