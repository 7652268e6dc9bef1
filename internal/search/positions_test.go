package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytePosToRuneASCII(t *testing.T) {
	text := "plain ascii text"
	pos := BytePosToRune(text, [][2]int{{0, 5}, {6, 11}})
	assert.Equal(t, [][2]int{{0, 5}, {6, 11}}, pos)
}

func TestBytePosToRuneMultibyte(t *testing.T) {
	// "héllo wörld": é and ö are two bytes each
	text := "héllo wörld"
	// "wörld" starts at byte 7 (rune 6) and ends at byte 13 (rune 11)
	pos := BytePosToRune(text, [][2]int{{7, 13}})
	assert.Equal(t, [][2]int{{6, 11}}, pos)
}

func TestBytePosToRuneCJK(t *testing.T) {
	text := "笔记本搜索" // 3 bytes per rune
	pos := BytePosToRune(text, [][2]int{{0, 9}, {9, 15}})
	assert.Equal(t, [][2]int{{0, 3}, {3, 5}}, pos)
}

func TestBytePosToRuneClampsOverflow(t *testing.T) {
	text := "short"
	pos := BytePosToRune(text, [][2]int{{2, 99}})
	assert.Equal(t, [][2]int{{2, 5}}, pos)
}

func TestBytePosToRuneEmpty(t *testing.T) {
	assert.Nil(t, BytePosToRune("text", nil))
}

func TestBytePosToRuneUnsortedInput(t *testing.T) {
	text := "héllo wörld"
	pos := BytePosToRune(text, [][2]int{{7, 13}, {0, 6}})
	assert.Equal(t, [][2]int{{6, 11}, {0, 5}}, pos)
}
