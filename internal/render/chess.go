package render

import (
	"strings"

	"github.com/pkg/errors"
)

var glyphs = map[rune]string{
	'K': "♔", 'Q': "♕", 'R': "♖", 'B': "♗", 'N': "♘", 'P': "♙",
	'k': "♚", 'q': "♛", 'r': "♜", 'b': "♝", 'n': "♞", 'p': "♟",
}

type Square struct {
	Piece rune
	Glyph string
	Shade string
}

// Position is the piece placement of a FEN string, rank 8 first.
type Position struct {
	FEN   string
	Ranks [8][8]Square
}

// ParseFEN reads the piece placement field. The remaining fields (side to
// move, castling and so on) are kept in FEN but not validated.
func ParseFEN(fen string) (*Position, error) {
	fen = strings.TrimSpace(fen)
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return nil, errors.New("empty FEN")
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, errors.Errorf("expected 8 ranks, got %d", len(ranks))
	}

	p := &Position{FEN: fen}
	for r, rank := range ranks {
		file := 0
		for _, c := range rank {
			switch {
			case c >= '1' && c <= '8':
				for n := 0; n < int(c-'0'); n++ {
					if file >= 8 {
						return nil, errors.Errorf("rank %d is too long", 8-r)
					}
					p.Ranks[r][file] = Square{Shade: shade(r, file)}
					file++
				}
			case glyphs[c] != "":
				if file >= 8 {
					return nil, errors.Errorf("rank %d is too long", 8-r)
				}
				p.Ranks[r][file] = Square{Piece: c, Glyph: glyphs[c], Shade: shade(r, file)}
				file++
			default:
				return nil, errors.Errorf("invalid piece %q in rank %d", c, 8-r)
			}
		}
		if file != 8 {
			return nil, errors.Errorf("rank %d has %d squares", 8-r, file)
		}
	}
	return p, nil
}

func shade(rank, file int) string {
	if (rank+file)%2 == 0 {
		return "light"
	}
	return "dark"
}
