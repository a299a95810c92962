package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rinkhouse/league-system/models"
	"github.com/rinkhouse/league-system/repositories"
)

// The fakes below back the service tests with in-memory state. The exec
// argument is ignored everywhere, mirroring the real repositories' fallback
// when no transaction is in flight, so a fake transaction is just the
// function call itself.

type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type fakeTournamentRepo struct {
	nextID  int
	records map[int]*models.Tournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{nextID: 1, records: make(map[int]*models.Tournament)}
}

func (r *fakeTournamentRepo) Create(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) error {
	tournament.ID = r.nextID
	r.nextID++
	tournament.CreatedAt = time.Now()
	stored := *tournament
	r.records[tournament.ID] = &stored
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	stored, ok := r.records[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *stored
	return &clone, nil
}

func (r *fakeTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeTournamentRepo) List(ctx context.Context, limit, offset int) ([]*models.Tournament, error) {
	ids := make([]int, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*models.Tournament, 0)
	for i, id := range ids {
		if i < offset || len(out) >= limit {
			continue
		}
		clone := *r.records[id]
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeTournamentRepo) ListByStatus(ctx context.Context, status models.TournamentStatus) ([]*models.Tournament, error) {
	ids := make([]int, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*models.Tournament, 0)
	for _, id := range ids {
		if r.records[id].Status == status {
			clone := *r.records[id]
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeTournamentRepo) Update(ctx context.Context, tournament *models.Tournament) error {
	stored, ok := r.records[tournament.ID]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	created := stored.CreatedAt
	*stored = *tournament
	stored.CreatedAt = created
	return nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	stored, ok := r.records[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	stored.Status = status
	return nil
}

func (r *fakeTournamentRepo) SetBracketInconsistent(ctx context.Context, exec repositories.SQLExecutor, id int, inconsistent bool) error {
	stored, ok := r.records[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	stored.BracketInconsistent = inconsistent
	return nil
}

func (r *fakeTournamentRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.records[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.records, id)
	return nil
}

type fakeMatchRepo struct {
	nextID  int
	records map[int]*models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{nextID: 1, records: make(map[int]*models.Match)}
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	match.ID = r.nextID
	r.nextID++
	match.CreatedAt = time.Now()
	stored := *match
	r.records[match.ID] = &stored
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	stored, ok := r.records[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	clone := *stored
	return &clone, nil
}

func (r *fakeMatchRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeMatchRepo) GetBracketReset(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (*models.Match, error) {
	for _, m := range r.records {
		if m.TournamentID == tournamentID && m.BracketType == models.BracketGrandFinal && m.Round == 2 {
			clone := *m
			return &clone, nil
		}
	}
	return nil, repositories.ErrMatchNotFound
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	ids := make([]int, 0, len(r.records))
	for id, m := range r.records {
		if m.TournamentID == tournamentID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]*models.Match, 0, len(ids))
	for _, id := range ids {
		clone := *r.records[id]
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeMatchRepo) CountByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	count := 0
	for _, m := range r.records {
		if m.TournamentID == tournamentID {
			count++
		}
	}
	return count, nil
}

func (r *fakeMatchRepo) UpdateResult(ctx context.Context, exec repositories.SQLExecutor, id int, homeScore, awayScore *int, status models.MatchStatus, winnerTeamID *int) error {
	stored, ok := r.records[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	stored.HomeScore = homeScore
	stored.AwayScore = awayScore
	stored.Status = status
	stored.WinnerTeamID = winnerTeamID
	return nil
}

func (r *fakeMatchRepo) UpdateParticipants(ctx context.Context, exec repositories.SQLExecutor, id int, homeTeamID, awayTeamID *int) error {
	stored, ok := r.records[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	stored.HomeTeamID = homeTeamID
	stored.AwayTeamID = awayTeamID
	return nil
}

func (r *fakeMatchRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.MatchStatus) error {
	stored, ok := r.records[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	stored.Status = status
	return nil
}

func (r *fakeMatchRepo) UpdateLinks(ctx context.Context, exec repositories.SQLExecutor, id int, nextMatchID *int, nextSlot *models.MatchSlot, loserNextMatchID *int, loserNextSlot *models.MatchSlot) error {
	stored, ok := r.records[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	stored.NextMatchID = nextMatchID
	stored.NextMatchSlot = nextSlot
	stored.LoserNextMatchID = loserNextMatchID
	stored.LoserNextMatchSlot = loserNextSlot
	return nil
}

func (r *fakeMatchRepo) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	deleted := 0
	for id, m := range r.records {
		if m.TournamentID == tournamentID {
			delete(r.records, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeTeamRepo struct {
	nextID  int
	records map[int]*models.Team
}

func newFakeTeamRepo() *fakeTeamRepo {
	return &fakeTeamRepo{nextID: 1, records: make(map[int]*models.Team)}
}

func (r *fakeTeamRepo) Create(ctx context.Context, team *models.Team) error {
	for _, existing := range r.records {
		if existing.TournamentID != team.TournamentID {
			continue
		}
		if existing.Name == team.Name {
			return repositories.ErrTeamNameConflict
		}
		if existing.Seed == team.Seed {
			return repositories.ErrTeamSeedConflict
		}
	}
	team.ID = r.nextID
	r.nextID++
	team.CreatedAt = time.Now()
	stored := *team
	r.records[team.ID] = &stored
	return nil
}

func (r *fakeTeamRepo) GetByID(ctx context.Context, id int) (*models.Team, error) {
	stored, ok := r.records[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	clone := *stored
	return &clone, nil
}

func (r *fakeTeamRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Team, error) {
	out := make([]*models.Team, 0)
	for _, t := range r.records {
		if t.TournamentID == tournamentID {
			clone := *t
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seed < out[j].Seed })
	return out, nil
}

func (r *fakeTeamRepo) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	stored, ok := r.records[id]
	if !ok {
		return repositories.ErrTeamNotFound
	}
	stored.LogoKey = logoKey
	return nil
}

func (r *fakeTeamRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.records[id]; !ok {
		return repositories.ErrTeamNotFound
	}
	delete(r.records, id)
	return nil
}

type roleKey struct {
	tournamentID, userID int
}

type fakeRoleRepo struct {
	records map[roleKey]*models.TournamentRoleBinding
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{records: make(map[roleKey]*models.TournamentRoleBinding)}
}

func (r *fakeRoleRepo) Upsert(ctx context.Context, exec repositories.SQLExecutor, binding *models.TournamentRoleBinding) error {
	// The schema's partial unique index on role = 'owner' is checked per
	// statement, so a second owner row must be rejected here as well.
	if binding.Role == models.RoleOwner {
		for key, b := range r.records {
			if b.TournamentID == binding.TournamentID && b.Role == models.RoleOwner && key.userID != binding.UserID {
				return fmt.Errorf("failed to upsert role binding (tournament %d, user %d): %w",
					binding.TournamentID, binding.UserID,
					errors.New(`pq: duplicate key value violates unique constraint "tournament_roles_owner_key"`))
			}
		}
	}
	stored := *binding
	stored.CreatedAt = time.Now()
	r.records[roleKey{binding.TournamentID, binding.UserID}] = &stored
	return nil
}

func (r *fakeRoleRepo) Get(ctx context.Context, tournamentID, userID int) (*models.TournamentRoleBinding, error) {
	stored, ok := r.records[roleKey{tournamentID, userID}]
	if !ok {
		return nil, repositories.ErrRoleBindingNotFound
	}
	clone := *stored
	return &clone, nil
}

func (r *fakeRoleRepo) GetOwner(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (*models.TournamentRoleBinding, error) {
	for _, b := range r.records {
		if b.TournamentID == tournamentID && b.Role == models.RoleOwner {
			clone := *b
			return &clone, nil
		}
	}
	return nil, repositories.ErrRoleBindingNotFound
}

func (r *fakeRoleRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.TournamentRoleBinding, error) {
	out := make([]*models.TournamentRoleBinding, 0)
	for _, b := range r.records {
		if b.TournamentID == tournamentID {
			clone := *b
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *fakeRoleRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, tournamentID, userID int) error {
	key := roleKey{tournamentID, userID}
	if _, ok := r.records[key]; !ok {
		return repositories.ErrRoleBindingNotFound
	}
	delete(r.records, key)
	return nil
}

type fakeUserRepo struct {
	nextID  int
	records map[int]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, records: make(map[int]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	for _, existing := range r.records {
		if existing.Email == user.Email {
			return repositories.ErrUserEmailConflict
		}
	}
	user.ID = r.nextID
	r.nextID++
	user.CreatedAt = time.Now()
	stored := *user
	r.records[user.ID] = &stored
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	stored, ok := r.records[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	clone := *stored
	return &clone, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.records {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

type fakeAuditRepo struct {
	records []*models.AuditRecord
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) Create(ctx context.Context, exec repositories.SQLExecutor, record *models.AuditRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = time.Now()
	stored := *record
	r.records = append(r.records, &stored)
	return nil
}

func (r *fakeAuditRepo) ListByTournament(ctx context.Context, tournamentID int, filter models.AuditFilter) ([]*models.AuditRecord, int, error) {
	matched := make([]*models.AuditRecord, 0)
	for _, rec := range r.records {
		if rec.TournamentID != tournamentID {
			continue
		}
		if filter.Action != nil && rec.Action != *filter.Action {
			continue
		}
		clone := *rec
		matched = append(matched, &clone)
	}
	total := len(matched)

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit
	if offset >= len(matched) {
		return []*models.AuditRecord{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// actions returns the recorded action names for a tournament, in order.
func (r *fakeAuditRepo) actions(tournamentID int) []models.AuditAction {
	out := make([]models.AuditAction, 0, len(r.records))
	for _, rec := range r.records {
		if rec.TournamentID == tournamentID {
			out = append(out, rec.Action)
		}
	}
	return out
}

type fakeTiebreakRepo struct {
	records map[int][]models.TiebreakOverride
}

func newFakeTiebreakRepo() *fakeTiebreakRepo {
	return &fakeTiebreakRepo{records: make(map[int][]models.TiebreakOverride)}
}

func (r *fakeTiebreakRepo) Replace(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, overrides []models.TiebreakOverride) error {
	r.records[tournamentID] = append([]models.TiebreakOverride(nil), overrides...)
	return nil
}

func (r *fakeTiebreakRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.TiebreakOverride, error) {
	return append([]models.TiebreakOverride(nil), r.records[tournamentID]...), nil
}

// testEnv wires the whole service stack over the fakes, without a websocket
// hub and with logging discarded.
type testEnv struct {
	tournaments *fakeTournamentRepo
	teams       *fakeTeamRepo
	matches     *fakeMatchRepo
	roles       *fakeRoleRepo
	users       *fakeUserRepo
	auditLog    *fakeAuditRepo
	tiebreaks   *fakeTiebreakRepo

	audit      AuditService
	authz      AuthorizationService
	tournament TournamentService
	bracket    BracketService
	match      MatchService
	standings  StandingsService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		tournaments: newFakeTournamentRepo(),
		teams:       newFakeTeamRepo(),
		matches:     newFakeMatchRepo(),
		roles:       newFakeRoleRepo(),
		users:       newFakeUserRepo(),
		auditLog:    newFakeAuditRepo(),
		tiebreaks:   newFakeTiebreakRepo(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tx := fakeTxManager{}

	env.audit = NewAuditService(env.auditLog, env.roles)
	env.authz = NewAuthorizationService(tx, env.roles, env.users, env.audit)
	env.tournament = NewTournamentService(tx, env.tournaments, env.matches, env.roles, env.authz, env.audit, logger)
	env.bracket = NewBracketService(tx, env.tournaments, env.teams, env.matches, env.authz, env.audit, nil, logger)
	env.match = NewMatchService(tx, env.matches, env.tournaments, env.authz, env.audit, nil, logger)
	env.standings = NewStandingsService(tx, env.tournaments, env.teams, env.matches, env.tiebreaks, env.authz, env.audit)
	return env
}

func (env *testEnv) addUser(id int) {
	env.users.records[id] = &models.User{ID: id, Email: uuid.NewString() + "@example.com"}
	if id >= env.users.nextID {
		env.users.nextID = id + 1
	}
}

func (env *testEnv) grantRole(tournamentID, userID int, role models.TournamentRole) {
	env.addUser(userID)
	env.roles.records[roleKey{tournamentID, userID}] = &models.TournamentRoleBinding{
		TournamentID: tournamentID,
		UserID:       userID,
		Role:         role,
	}
}

// newTournament seeds a tournament with n teams and user 1 as owner. Team IDs
// are assigned by the fake in seed order, so teamID(seed) is stable.
func (env *testEnv) newTournament(format models.TournamentFormat, status models.TournamentStatus, n int) *models.Tournament {
	tournament := &models.Tournament{
		Name:        "Winter Cup",
		Format:      format,
		Status:      status,
		StartDate:   time.Now().Add(24 * time.Hour),
		Tiebreakers: []string{string(models.TiebreakerScoreDiff), string(models.TiebreakerScoreFor)},
	}
	_ = env.tournaments.Create(context.Background(), nil, tournament)
	env.grantRole(tournament.ID, 1, models.RoleOwner)

	names := []string{"Aces", "Bears", "Comets", "Drakes", "Eagles", "Flyers", "Giants", "Hawks"}
	for seed := 1; seed <= n; seed++ {
		team := &models.Team{
			TournamentID: tournament.ID,
			Name:         names[(seed-1)%len(names)],
			Seed:         seed,
			CaptainID:    1,
		}
		_ = env.teams.Create(context.Background(), team)
	}
	return tournament
}

// findMatch locates a bracket node by position.
func (env *testEnv) findMatch(tournamentID int, bracketType models.BracketType, round, number int) *models.Match {
	for _, m := range env.matches.records {
		if m.TournamentID == tournamentID && m.BracketType == bracketType && m.Round == round && m.MatchNumber == number {
			clone := *m
			return &clone
		}
	}
	return nil
}
