// Package game implements the rules engine for Cheat: hands, the shared
// pile, turn order, bluff calls, and the append-only history every decision
// is derived from. The engine is synchronous and single-goroutine; the
// session layer owns all concurrency around it.
package game

import (
	rand "math/rand/v2"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cheatlab/cheatd/internal/deck"
)

// Recorder receives every history event as it is appended. Implementations
// must never fail the game; persistence errors are theirs to swallow.
type Recorder interface {
	Record(round int, ev Event)
}

// Game holds the full state of one table across rounds. None of its methods
// are safe for concurrent use.
type Game struct {
	players        []*Player
	pile           []deck.Card
	discardedRanks []deck.Rank
	currentRank    deck.Rank
	rankSet        bool
	turn           int
	round          int
	history        []Event
	roundOver      bool
	winner         int
	gameOver       bool

	rng    *rand.Rand
	logger *log.Logger
	rec    Recorder
	now    func() time.Time
}

// Option configures a Game.
type Option func(*Game)

// WithLogger sets the engine's logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *Game) { g.logger = logger }
}

// WithRecorder attaches a history recorder.
func WithRecorder(rec Recorder) Option {
	return func(g *Game) { g.rec = rec }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Game) { g.now = now }
}

// New deals a fresh game to the given seats and picks a random first player.
// The rng drives the shuffle, the opening seat, and nothing else.
func New(players []*Player, rng *rand.Rand, opts ...Option) *Game {
	g := &Game{
		players: players,
		round:   1,
		winner:  NoSeat,
		rng:     rng,
		logger:  log.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.deal()
	g.turn = g.rng.IntN(len(g.players))
	g.append(&NewRoundEvent{At: g.now(), Round: g.round})
	return g
}

func (g *Game) deal() {
	d := deck.New(g.rng)
	d.Shuffle()
	hands := d.DealAll(len(g.players))
	for i, p := range g.players {
		p.Hand = hands[i]
	}
}

// NewRound redeals and resets the table state. Seats, participants, and the
// accumulated history carry over; the round counter advances.
func (g *Game) NewRound() {
	g.deal()
	g.pile = nil
	g.discardedRanks = nil
	g.rankSet = false
	g.turn = g.rng.IntN(len(g.players))
	g.roundOver = false
	g.winner = NoSeat
	g.round++
	g.append(&NewRoundEvent{At: g.now(), Round: g.round})
	g.logger.Info("new round dealt", "round", g.round)
}

// Player returns the seat with the given ID.
func (g *Game) Player(id int) *Player { return g.players[id] }

// Players returns all seats in order.
func (g *Game) Players() []*Player { return g.players }

// NumPlayers returns the number of seats.
func (g *Game) NumPlayers() int { return len(g.players) }

// CurrentPlayer returns the seat whose turn it is.
func (g *Game) CurrentPlayer() *Player { return g.players[g.turn] }

// Turn returns the current seat index.
func (g *Game) Turn() int { return g.turn }

// Round returns the current round number, starting at 1.
func (g *Game) Round() int { return g.round }

// Advance moves the turn to the next seat and returns it.
func (g *Game) Advance() int {
	g.turn = (g.turn + 1) % len(g.players)
	return g.turn
}

// PileSize returns the number of face-down cards on the table.
func (g *Game) PileSize() int { return len(g.pile) }

// CurrentRank returns the rank the trick is locked to. ok is false exactly
// when the pile is empty.
func (g *Game) CurrentRank() (deck.Rank, bool) {
	return g.currentRank, g.rankSet
}

// DiscardedRanks returns the ranks removed from play this round.
func (g *Game) DiscardedRanks() []deck.Rank { return g.discardedRanks }

// History returns the full event log. Callers must not mutate it.
func (g *Game) History() []Event { return g.history }

// RoundOver reports whether the current round has ended.
func (g *Game) RoundOver() bool { return g.roundOver }

// Winner returns the round winner's seat, or false when the round is still
// running or ended with no winner.
func (g *Game) Winner() (int, bool) {
	if g.winner == NoSeat {
		return 0, false
	}
	return g.winner, true
}

// GameOver reports whether the game has been terminated.
func (g *Game) GameOver() bool { return g.gameOver }

// EndGame marks the game finished and records the terminal event. Calling it
// twice is a no-op.
func (g *Game) EndGame() {
	if g.gameOver {
		return
	}
	g.gameOver = true
	g.append(&GameOverEvent{At: g.now()})
}

// LastPlay scans the history backwards for the most recent play, reporting
// false when nothing has been played yet. Intervening calls, discards, and
// chat do not disturb the scan.
func (g *Game) LastPlay() (*PlayEvent, bool) {
	for i := len(g.history) - 1; i >= 0; i-- {
		if play, ok := g.history[i].(*PlayEvent); ok {
			return play, true
		}
	}
	return nil, false
}

// Play moves the given cards face-down onto the pile under the declared
// rank. On an empty pile the declaration opens a new trick and becomes the
// current rank; otherwise it must match. An invalid play changes nothing and
// appends nothing.
func (g *Game) Play(playerID int, declared deck.Rank, cards []deck.Card) error {
	player := g.players[playerID]

	if len(cards) == 0 {
		return invalidMovef("must play at least one card")
	}
	if g.rankSet && declared != g.currentRank {
		return invalidMovef("must declare %s this trick", g.currentRank)
	}
	// Validate before mutating so a bad card leaves the hand untouched.
	working := make(deck.Hand, len(player.Hand))
	copy(working, player.Hand)
	for _, c := range cards {
		if !working.Remove(c) {
			return invalidMovef("trying to play a card not in hand")
		}
	}

	if !g.rankSet {
		g.currentRank = declared
		g.rankSet = true
	}
	player.Hand = working
	g.pile = append(g.pile, cards...)
	g.append(&PlayEvent{SeatID: playerID, At: g.now(), DeclaredRank: declared, Cards: cards})
	return nil
}

// CallBluff resolves a call against the last play: the revealed cards become
// public, the liar (or the mistaken caller) takes the whole pile, and the
// trick ends. The pile is cleared and the rank reset regardless of outcome.
func (g *Game) CallBluff(callerID int) (*CallEvent, error) {
	last, ok := g.LastPlay()
	if !ok || len(g.pile) == 0 {
		return nil, invalidMovef("nothing to call")
	}

	lying := false
	for _, c := range last.Cards {
		if c.Rank != last.DeclaredRank {
			lying = true
			break
		}
	}

	call := &CallEvent{
		SeatID:    callerID,
		At:        g.now(),
		AccusedID: last.SeatID,
		WasLying:  lying,
		Revealed:  last.Cards,
	}
	g.append(call)

	loser := callerID
	if lying {
		loser = last.SeatID
	}
	g.players[loser].Hand.Add(g.pile...)
	g.append(&PickUpEvent{SeatID: loser, At: g.now(), Count: len(g.pile)})
	g.logger.Info("bluff called",
		"caller", callerID, "accused", last.SeatID, "lying", lying, "pile", len(g.pile))

	g.pile = nil
	g.rankSet = false
	return call, nil
}

// DiscardFours removes every complete four-of-a-kind from the player's hand,
// Aces excepted. All sets leave in one event; a hand with no complete set is
// a no-op and returns nil.
func (g *Game) DiscardFours(playerID int) []deck.Rank {
	player := g.players[playerID]
	counts := player.Hand.CountByRank()

	var dropped []deck.Rank
	for _, r := range deck.Ranks {
		if r == deck.Ace || counts[r] != 4 {
			continue
		}
		dropped = append(dropped, r)
	}
	if len(dropped) == 0 {
		return nil
	}

	kept := player.Hand[:0]
	for _, c := range player.Hand {
		keep := true
		for _, r := range dropped {
			if c.Rank == r {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, c)
		}
	}
	player.Hand = kept
	g.discardedRanks = append(g.discardedRanks, dropped...)
	g.append(&DiscardEvent{SeatID: playerID, At: g.now(), Ranks: dropped})
	return dropped
}

// CheckWinner ends the round if the player has won: either their hand is
// empty, or it is their turn and every remaining card shares one non-Ace
// rank they could truthfully play (the trick rank matches or is unset).
func (g *Game) CheckWinner(playerID int) bool {
	player := g.players[playerID]

	won := len(player.Hand) == 0
	if !won && g.turn == playerID && len(player.Hand) > 0 {
		r := player.Hand[0].Rank
		if r != deck.Ace && player.Hand.AllRank(r) && (!g.rankSet || g.currentRank == r) {
			won = true
		}
	}
	if !won {
		return false
	}

	g.roundOver = true
	g.winner = playerID
	g.append(&WinEvent{SeatID: playerID, At: g.now()})
	g.logger.Info("round won", "round", g.round, "winner", player.Name)
	return true
}

// AllAces reports the dead-end where every seat holds nothing but Aces. No
// legal truthful play exists, so the round must end without a winner.
func (g *Game) AllAces() bool {
	for _, p := range g.players {
		if !p.Hand.AllRank(deck.Ace) {
			return false
		}
	}
	return true
}

// EndRoundDrawn ends the round with no winner.
func (g *Game) EndRoundDrawn() {
	g.roundOver = true
	g.winner = NoSeat
}

// RecordMessage appends table chat to the history.
func (g *Game) RecordMessage(seatID int, msg string, human bool) {
	g.append(&MessageEvent{SeatID: seatID, At: g.now(), Message: msg, Human: human})
}

// RecordExit appends a player-exit event.
func (g *Game) RecordExit(seatID int) {
	g.append(&PlayerExitEvent{SeatID: seatID, At: g.now()})
}

// RecordReplacement appends a bot-takeover event.
func (g *Game) RecordReplacement(seatID int, botName string) {
	g.append(&ReplacementEvent{SeatID: seatID, At: g.now(), BotName: botName})
}

// RecordFailure appends a participant-failure event.
func (g *Game) RecordFailure(seatID int, reason string) {
	g.append(&FailureEvent{SeatID: seatID, At: g.now(), Reason: reason})
}

// View builds the seat-scoped snapshot handed to automated participants.
func (g *Game) View(seatID int) *View {
	hand := make(deck.Hand, len(g.players[seatID].Hand))
	copy(hand, g.players[seatID].Hand)

	sizes := make([]int, len(g.players))
	infos := make([]PlayerInfo, len(g.players))
	for i, p := range g.players {
		sizes[i] = len(p.Hand)
		infos[i] = p.Info()
	}

	return &View{
		Self:           seatID,
		Hand:           hand,
		HandSizes:      sizes,
		PileSize:       len(g.pile),
		CurrentRank:    g.currentRank,
		HasRank:        g.rankSet,
		DiscardedRanks: append([]deck.Rank(nil), g.discardedRanks...),
		Turn:           g.turn,
		Round:          g.round,
		NumPlayers:     len(g.players),
		Players:        infos,
		History:        g.history,
	}
}

// Info is the public table snapshot broadcast to every client.
type Info struct {
	CurrentPlayer     int          `json:"current_player"`
	CurrentPlayerName string       `json:"current_player_name"`
	CurrentRank       string       `json:"current_rank,omitempty"`
	Players           []PlayerInfo `json:"players"`
	Hands             []int        `json:"hands"`
	NumPlayers        int          `json:"num_players"`
	PileSize          int          `json:"pile_size"`
	HumanIDs          []int        `json:"human_ids"`
}

// Info returns the public snapshot of the table.
func (g *Game) Info() Info {
	info := Info{
		CurrentPlayer:     g.turn,
		CurrentPlayerName: g.players[g.turn].Name,
		Players:           make([]PlayerInfo, len(g.players)),
		Hands:             make([]int, len(g.players)),
		NumPlayers:        len(g.players),
		PileSize:          len(g.pile),
		HumanIDs:          []int{},
	}
	if g.rankSet {
		info.CurrentRank = g.currentRank.String()
	}
	for i, p := range g.players {
		info.Players[i] = p.Info()
		info.Hands[i] = len(p.Hand)
		if p.IsHuman() {
			info.HumanIDs = append(info.HumanIDs, p.ID)
		}
	}
	return info
}

func (g *Game) append(ev Event) {
	g.history = append(g.history, ev)
	if g.rec != nil {
		g.rec.Record(g.round, ev)
	}
}
