package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ButyrinIA/forum/internal/models"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		text TEXT NOT NULL,
		tags TEXT[] NOT NULL DEFAULT '{}',
		answers TEXT[] NOT NULL DEFAULT '{}',
		asked_by TEXT NOT NULL,
		ask_date_time TIMESTAMPTZ NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		up_votes TEXT[] NOT NULL DEFAULT '{}',
		down_votes TEXT[] NOT NULL DEFAULT '{}',
		comments TEXT[] NOT NULL DEFAULT '{}'
	);
	CREATE TABLE IF NOT EXISTS answers (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL REFERENCES questions(id),
		text TEXT NOT NULL,
		ans_by TEXT NOT NULL,
		ans_date_time TIMESTAMPTZ NOT NULL,
		comments TEXT[] NOT NULL DEFAULT '{}'
	);
	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		comment_by TEXT NOT NULL,
		comment_date_time TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);
`

const questionColumns = `id, title, text, tags, answers, asked_by, ask_date_time, views, up_votes, down_votes, comments`

// toggleVoteQueries hold one statement per direction. Every SET expression reads the
// pre-update row, so membership test, toggle and opposite-set removal happen together.
var toggleVoteQueries = map[models.VoteDirection]string{
	models.Upvote: `
		UPDATE questions SET
			up_votes = CASE WHEN $2 = ANY(up_votes) THEN array_remove(up_votes, $2) ELSE array_append(up_votes, $2) END,
			down_votes = array_remove(down_votes, $2)
		WHERE id = $1
		RETURNING up_votes, down_votes`,
	models.Downvote: `
		UPDATE questions SET
			down_votes = CASE WHEN $2 = ANY(down_votes) THEN array_remove(down_votes, $2) ELSE array_append(down_votes, $2) END,
			up_votes = array_remove(up_votes, $2)
		WHERE id = $1
		RETURNING up_votes, down_votes`,
}

var listOrderClauses = map[models.QuestionOrder]string{
	models.OrderNewest:     `ORDER BY q.ask_date_time DESC`,
	models.OrderUnanswered: `ORDER BY q.ask_date_time DESC`,
	models.OrderMostViewed: `ORDER BY q.views DESC, q.ask_date_time DESC`,
	models.OrderActive: `ORDER BY (SELECT MAX(a.ans_date_time) FROM answers a WHERE a.question_id = q.id) DESC NULLS LAST,
		q.ask_date_time DESC`,
}

type PostgresStorage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

func (s *PostgresStorage) CreateQuestion(ctx context.Context, q *models.Question) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO questions (`+questionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		q.ID, q.Title, q.Text, orEmpty(q.Tags), orEmpty(q.Answers), q.AskedBy, q.AskDateTime,
		q.Views, orEmpty(q.UpVotes), orEmpty(q.DownVotes), orEmpty(q.Comments))
	return err
}

func (s *PostgresStorage) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return q, err
}

func (s *PostgresStorage) ListQuestions(ctx context.Context, order models.QuestionOrder, search string) ([]*models.Question, error) {
	orderBy, ok := listOrderClauses[order]
	if !ok {
		orderBy = listOrderClauses[models.OrderNewest]
	}
	filter := storage.ParseSearch(search)

	query := `
		SELECT q.id, q.title, q.text, q.tags, q.answers, q.asked_by, q.ask_date_time,
			q.views, q.up_votes, q.down_votes, q.comments
		FROM questions q
		WHERE ($1::BOOLEAN = FALSE OR cardinality(q.answers) = 0)
		AND (
			(cardinality($2::TEXT[]) = 0 AND cardinality($3::TEXT[]) = 0)
			OR EXISTS (SELECT 1 FROM unnest($2::TEXT[]) w
				WHERE strpos(lower(q.title), w) > 0 OR strpos(lower(q.text), w) > 0)
			OR EXISTS (SELECT 1 FROM tags t WHERE t.id = ANY(q.tags) AND lower(t.name) = ANY($3::TEXT[]))
		)
		` + orderBy
	rows, err := s.pool.Query(ctx, query, order == models.OrderUnanswered, orEmpty(filter.Keywords), orEmpty(filter.Tags))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *PostgresStorage) CreateAnswer(ctx context.Context, qid string, a *models.Answer) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE questions SET answers = array_append(answers, $2) WHERE id = $1`, qid, a.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO answers (id, question_id, text, ans_by, ans_date_time, comments)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			a.ID, qid, a.Text, a.AnsBy, a.AnsDateTime, orEmpty(a.Comments))
		return err
	})
}

func (s *PostgresStorage) AddComment(ctx context.Context, targetID string, targetType models.TargetType, c *models.Comment) error {
	var appendQuery string
	switch targetType {
	case models.TargetQuestion:
		appendQuery = `UPDATE questions SET comments = array_append(comments, $2) WHERE id = $1`
	case models.TargetAnswer:
		appendQuery = `UPDATE answers SET comments = array_append(comments, $2) WHERE id = $1`
	default:
		return fmt.Errorf("unknown comment target %q", targetType)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO comments (id, text, comment_by, comment_date_time)
			VALUES ($1, $2, $3, $4)`,
			c.ID, c.Text, c.CommentBy, c.CommentDateTime)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, appendQuery, targetID, c.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStorage) ToggleVote(ctx context.Context, qid, username string, direction models.VoteDirection) (*models.VoteSets, error) {
	query, ok := toggleVoteQueries[direction]
	if !ok {
		return nil, fmt.Errorf("unknown vote direction %q", direction)
	}
	var sets models.VoteSets
	err := s.pool.QueryRow(ctx, query, qid, username).Scan(&sets.UpVotes, &sets.DownVotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sets.UpVotes, sets.DownVotes = orEmpty(sets.UpVotes), orEmpty(sets.DownVotes)
	return &sets, nil
}

func (s *PostgresStorage) IncrementViews(ctx context.Context, qid string) (int, error) {
	var views int
	err := s.pool.QueryRow(ctx, `UPDATE questions SET views = views + 1 WHERE id = $1 RETURNING views`, qid).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	return views, err
}

func (s *PostgresStorage) UpsertTags(ctx context.Context, tags []models.Tag) ([]models.Tag, error) {
	result := make([]models.Tag, 0, len(tags))
	for _, t := range tags {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		// Пустое обновление нужно, чтобы RETURNING вернул существующую строку при конфликте.
		var out models.Tag
		err := s.pool.QueryRow(ctx, `
			INSERT INTO tags (id, name, description) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, name, description`,
			t.ID, t.Name, t.Description).Scan(&out.ID, &out.Name, &out.Description)
		if err != nil {
			return nil, err
		}
		result = append(result, out)
	}
	return result, nil
}

func (s *PostgresStorage) ListTags(ctx context.Context) ([]models.TagCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.name, (SELECT COUNT(*) FROM questions q WHERE t.id = ANY(q.tags))
		FROM tags t
		ORDER BY t.name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TagCount, error) {
		var tc models.TagCount
		err := row.Scan(&tc.Name, &tc.QuestionCnt)
		return tc, err
	})
}

// Пакетные чтения возвращают записи в порядке ids и пропускают отсутствующие.

func (s *PostgresStorage) GetAnswersByIDs(ctx context.Context, ids []string) ([]*models.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.question_id, a.text, a.ans_by, a.ans_date_time, a.comments
		FROM answers a
		JOIN unnest($1::TEXT[]) WITH ORDINALITY AS k(id, ord) ON k.id = a.id
		ORDER BY k.ord`, orEmpty(ids))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Answer, error) {
		var a models.Answer
		err := row.Scan(&a.ID, &a.QuestionID, &a.Text, &a.AnsBy, &a.AnsDateTime, &a.Comments)
		a.Comments = orEmpty(a.Comments)
		return &a, err
	})
}

func (s *PostgresStorage) GetCommentsByIDs(ctx context.Context, ids []string) ([]*models.Comment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.text, c.comment_by, c.comment_date_time
		FROM comments c
		JOIN unnest($1::TEXT[]) WITH ORDINALITY AS k(id, ord) ON k.id = c.id
		ORDER BY k.ord`, orEmpty(ids))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Comment, error) {
		var c models.Comment
		err := row.Scan(&c.ID, &c.Text, &c.CommentBy, &c.CommentDateTime)
		return &c, err
	})
}

func (s *PostgresStorage) GetTagsByIDs(ctx context.Context, ids []string) ([]*models.Tag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.description
		FROM tags t
		JOIN unnest($1::TEXT[]) WITH ORDINALITY AS k(id, ord) ON k.id = t.id
		ORDER BY k.ord`, orEmpty(ids))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Tag, error) {
		var t models.Tag
		err := row.Scan(&t.ID, &t.Name, &t.Description)
		return &t, err
	})
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var q models.Question
	err := row.Scan(&q.ID, &q.Title, &q.Text, &q.Tags, &q.Answers, &q.AskedBy, &q.AskDateTime,
		&q.Views, &q.UpVotes, &q.DownVotes, &q.Comments)
	if err != nil {
		return nil, err
	}
	q.Tags, q.Answers, q.Comments = orEmpty(q.Tags), orEmpty(q.Answers), orEmpty(q.Comments)
	q.UpVotes, q.DownVotes = orEmpty(q.UpVotes), orEmpty(q.DownVotes)
	return &q, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
