// chatctl seeds and inspects the match chat store.
//
//	chatctl add-user -id alice -name Alice
//	chatctl add-match -id M1 -home Lyon -away Nantes -kickoff 2026-06-11T21:00:00Z
//	chatctl list-posts -room M1 -limit 20
//	chatctl token -user alice
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"match-chat/auth"
	"match-chat/domain"
	"match-chat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const usage = "usage: chatctl <add-user|add-match|list-users|list-matches|list-posts|token> [flags]"

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}
	if err := run(context.Background(), os.Args[1], os.Args[2:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, command string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	dbPath := fs.String("db", envOr("BADGER_FILEPATH", "./data/badger"), "Path to badger DB")

	switch command {
	case "add-user":
		id := fs.String("id", "", "identity id")
		name := fs.String("name", "", "display name")
		avatar := fs.String("avatar", "", "avatar reference")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withDB(*dbPath, func(db *badger.DB) error {
			return repositories.NewUserRepository(db).PutUser(ctx, domain.Identity{ID: *id, DisplayName: *name, AvatarRef: *avatar})
		})

	case "add-match":
		id := fs.String("id", "", "match id, also the room id")
		home := fs.String("home", "", "home team")
		away := fs.String("away", "", "away team")
		kickoff := fs.String("kickoff", "", "kick-off time, RFC3339")
		location := fs.String("location", "", "stadium")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var at time.Time
		if *kickoff != "" {
			var err error
			if at, err = time.Parse(time.RFC3339, *kickoff); err != nil {
				return fmt.Errorf("invalid kick-off: %w", err)
			}
		}
		return withDB(*dbPath, func(db *badger.DB) error {
			return repositories.NewMatchRepository(db).PutMatch(ctx, domain.Match{
				ID: domain.RoomID(*id), Home: *home, Away: *away, KickOff: at, Location: *location,
			})
		})

	case "list-users":
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withDB(*dbPath, func(db *badger.DB) error {
			users, err := repositories.NewUserRepository(db).ListUsers(ctx)
			if err != nil {
				return err
			}
			render(out, []string{"ID", "Display name", "Avatar"}, lo.Map(users, func(u domain.Identity, _ int) []string {
				return []string{u.ID, u.DisplayName, u.AvatarRef}
			}))
			return nil
		})

	case "list-matches":
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withDB(*dbPath, func(db *badger.DB) error {
			matches, err := repositories.NewMatchRepository(db).ListMatches(ctx)
			if err != nil {
				return err
			}
			render(out, []string{"ID", "Home", "Away", "Kick-off", "Location"}, lo.Map(matches, func(m domain.Match, _ int) []string {
				kickoff := ""
				if !m.KickOff.IsZero() {
					kickoff = m.KickOff.Format(time.RFC3339)
				}
				return []string{m.ID.String(), m.Home, m.Away, kickoff, m.Location}
			}))
			return nil
		})

	case "list-posts":
		room := fs.String("room", "", "match id")
		limit := fs.Int("limit", 20, "number of posts, 0 for all")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return withDB(*dbPath, func(db *badger.DB) error {
			posts, _, err := repositories.NewPostRepository(db, logs.GetLoggerFromString("ERROR")).
				GetMessages(ctx, domain.RoomID(*room), nil, *limit)
			if err != nil {
				return err
			}
			render(out, []string{"Time", "Author", "Category", "Lang", "Content"}, lo.Map(posts, func(p domain.Post, _ int) []string {
				return []string{p.CreatedAt.Format("15:04:05"), p.AuthorID, string(p.Category), p.Language, p.Content}
			}))
			return nil
		})

	case "token":
		user := fs.String("user", "", "identity id the token is issued for")
		secret := fs.String("secret", os.Getenv("AUTH_SECRET"), "signing secret")
		duration := fs.Duration("duration", envDuration("AUTH_TOKEN_DURATION", 24*time.Hour), "validity")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *user == "" || *secret == "" {
			return fmt.Errorf("token needs -user and -secret (or AUTH_SECRET)")
		}
		token, err := auth.NewAuthenticator(*secret).GenerateToken(*user, []string{"fan"}, *duration)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, token)
		return err

	default:
		return fmt.Errorf("unknown command %q, %s", command, usage)
	}
}

func withDB(path string, fn func(db *badger.DB) error) error {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("error while opening Badger: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func render(out io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.AppendBulk(rows)
	table.Render()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
