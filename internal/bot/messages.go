package bot

import (
	rand "math/rand/v2"

	"github.com/cheatlab/cheatd/internal/game"
)

// Table-talk topics beyond the ones the session solicits directly. Bots pick
// these themselves from the latest history event.
const (
	topicThinkingNewPlay     game.Topic = "thinking_new_play"
	topicSuspicious          game.Topic = "suspicious"
	topicSuspicionsConfirmed game.Topic = "suspicions_confirmed"
	topicPilePickedUp        game.Topic = "pile_picked_up"
	topicSmallPilePickedUp   game.Topic = "small_pile_picked_up"
	topicSurprise            game.Topic = "surprise"
	topicTauntBlatantLie     game.Topic = "taunt_blatant_lie"
)

var messagePools = map[game.Topic][]string{
	game.TopicThinking: {
		"Do I believe this?",
		"Can they be trusted?",
		"Hm ...",
		"Let's see ...",
	},
	topicThinkingNewPlay: {
		"Hm ...",
		"Let's see ...",
	},
	topicSuspicious: {
		"Hmm, suspicious ...",
		"No way!",
		"Flip Flip Flip!",
		"That's some BS",
		"Yeah right",
		"Lotta liars these days",
	},
	topicSuspicionsConfirmed: {
		"Thought so",
		"Knew it",
		"So obvious",
	},
	topicPilePickedUp: {
		"So many liars here",
		"Yikes",
		"Oh dear ...",
	},
	topicSmallPilePickedUp: {
		"Worth a try",
		"Only my own cards anyway",
		"No harm done",
	},
	topicSurprise: {
		"Oh, how surprising!",
		"Not lying -- how unusual",
		"New strategy eh?",
	},
	topicTauntBlatantLie: {
		"Caught red-handed!",
		"Saw that coming",
		"Busted",
	},
}

func pick(rng *rand.Rand, topics ...game.Topic) string {
	var pool []string
	for _, t := range topics {
		pool = append(pool, messagePools[t]...)
	}
	if len(pool) == 0 {
		return ""
	}
	return pool[rng.IntN(len(pool))]
}

// announce implements the shared table-talk policy. The verbosity gate comes
// first: a silent bot never speaks no matter the topic.
func announce(view *game.View, topic game.Topic, verbosity float64, rng *rand.Rand) string {
	if rng.Float64() > verbosity || len(view.History) == 0 {
		return ""
	}

	if topic != game.TopicAny {
		if topic == game.TopicThinking && !view.HasRank {
			return pick(rng, topicThinkingNewPlay)
		}
		return pick(rng, topic)
	}

	idx := view.LastActionIndex()
	if idx < 0 {
		return ""
	}

	switch last := view.History[idx].(type) {
	case *game.CallEvent:
		switch {
		case last.AccusedID == view.Self:
			if !last.WasLying {
				return ""
			}
			// Picking up just your own cards stings less than the whole pile.
			if idx+1 < len(view.History) {
				if pickup, ok := view.History[idx+1].(*game.PickUpEvent); ok && pickup.Count <= 3 {
					return pick(rng, topicSmallPilePickedUp)
				}
			}
			return pick(rng, topicPilePickedUp)
		case last.SeatID == view.Self:
			if last.WasLying {
				return pick(rng, topicSuspicionsConfirmed)
			}
			return pick(rng, topicSurprise, topicPilePickedUp)
		default:
			if last.WasLying {
				return pick(rng, topicTauntBlatantLie)
			}
		}
	case *game.PlayEvent:
		// Skip own plays, and hold back when acting next anyway.
		if last.SeatID == view.Self || (last.SeatID+1)%view.NumPlayers == view.Self {
			return ""
		}
		return pick(rng, topicSuspicious)
	}
	return ""
}
