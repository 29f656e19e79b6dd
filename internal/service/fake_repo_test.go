package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/model"
	"github.com/mmeshcher/association-finance/internal/repository"
)

// fakeRepo хранит данные в памяти и повторяет контракт PostgresRepository:
// изменения применяются только если колбэк вернул nil.
type fakeRepo struct {
	mu sync.Mutex

	nextID        int64
	members       map[int64]*model.Member
	loans         map[int64]*model.Loan
	deleted       map[int64]bool
	repayments    []model.Repayment
	groups        map[int64]*model.RotatingGroup
	rounds        map[int64]*model.Round
	contributions map[int64]*model.Contribution
	penalties     map[int64]*model.Penalty
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		members:       map[int64]*model.Member{},
		loans:         map[int64]*model.Loan{},
		deleted:       map[int64]bool{},
		groups:        map[int64]*model.RotatingGroup{},
		rounds:        map[int64]*model.Round{},
		contributions: map[int64]*model.Contribution{},
		penalties:     map[int64]*model.Penalty{},
	}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) addMember(id int64, active bool, fees ...string) {
	m := &model.Member{ID: id, Name: "member", Active: active}
	for _, fee := range fees {
		m.Fees = append(m.Fees, model.Fee{Amount: decimal.RequireFromString(fee)})
	}
	f.members[id] = m
}

func (f *fakeRepo) addLoan(l model.Loan) *model.Loan {
	l.ID = f.id()
	f.loans[l.ID] = &l
	return &l
}

func (f *fakeRepo) Close() error { return nil }

func (f *fakeRepo) FindMember(ctx context.Context, id int64) (*model.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findMember(id)
}

func (f *fakeRepo) findMember(id int64) (*model.Member, error) {
	m, ok := f.members[id]
	if !ok {
		return nil, repository.ErrMemberNotFound
	}
	res := *m
	res.Fees = slices.Clone(m.Fees)
	res.Loans = nil
	for _, lid := range f.sortedLoanIDs() {
		l := f.loans[lid]
		if l.MemberID == id && !f.deleted[lid] {
			res.Loans = append(res.Loans, *l)
		}
	}
	return &res, nil
}

func (f *fakeRepo) sortedLoanIDs() []int64 {
	ids := make([]int64, 0, len(f.loans))
	for id := range f.loans {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (f *fakeRepo) CreateLoan(ctx context.Context, memberID int64, build func(m *model.Member) (*model.Loan, error)) (*model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.findMember(memberID)
	if err != nil {
		return nil, err
	}
	l, err := build(m)
	if err != nil {
		return nil, err
	}
	l.ID = f.id()
	l.MemberID = memberID
	stored := *l
	f.loans[l.ID] = &stored
	return l, nil
}

func (f *fakeRepo) getLoan(id int64) (*model.Loan, error) {
	l, ok := f.loans[id]
	if !ok || f.deleted[id] {
		return nil, repository.ErrLoanNotFound
	}
	res := *l
	return &res, nil
}

func (f *fakeRepo) GetLoan(ctx context.Context, id int64) (*model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getLoan(id)
}

func (f *fakeRepo) ModifyLoan(ctx context.Context, id int64, fn func(l *model.Loan) error) (*model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, err := f.getLoan(id)
	if err != nil {
		return nil, err
	}
	if err := fn(l); err != nil {
		return nil, err
	}
	stored := *l
	f.loans[id] = &stored
	return l, nil
}

func (f *fakeRepo) RepayLoan(ctx context.Context, id int64, fn func(l *model.Loan) error) (*model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, err := f.getLoan(id)
	if err != nil {
		return nil, err
	}
	if err := fn(l); err != nil {
		return nil, err
	}
	stored := *l
	f.loans[id] = &stored
	f.repayments = append(f.repayments, model.Repayment{
		ID: f.id(), LoanID: id, Amount: *l.AmountRepaid, PaidAt: *l.RepaymentDate,
	})
	return l, nil
}

func (f *fakeRepo) SoftDeleteLoan(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.getLoan(id); err != nil {
		return err
	}
	f.deleted[id] = true
	return nil
}

func (f *fakeRepo) listLoans(keep func(l model.Loan) bool) []model.Loan {
	var res []model.Loan
	for _, id := range f.sortedLoanIDs() {
		if f.deleted[id] {
			continue
		}
		if l := *f.loans[id]; keep(l) {
			res = append(res, l)
		}
	}
	return res
}

func (f *fakeRepo) ListLoans(ctx context.Context, flt model.LoanFilter, now time.Time) ([]model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.listLoans(func(l model.Loan) bool {
		if flt.MemberID != nil && l.MemberID != *flt.MemberID {
			return false
		}
		if flt.MinAmount != nil && l.Amount.LessThan(*flt.MinAmount) {
			return false
		}
		if flt.MaxAmount != nil && l.Amount.GreaterThan(*flt.MaxAmount) {
			return false
		}
		if flt.DueFrom != nil && l.DueDate.Before(*flt.DueFrom) {
			return false
		}
		if flt.DueTo != nil && l.DueDate.After(*flt.DueTo) {
			return false
		}
		if flt.Status != nil {
			switch *flt.Status {
			case model.LoanStatusRepaid:
				return l.Status == model.LoanStatusRepaid
			case model.LoanStatusOverdue:
				return l.Status != model.LoanStatusRepaid && l.DueDate.Before(now)
			default:
				return l.Status != model.LoanStatusRepaid && !l.DueDate.Before(now)
			}
		}
		return true
	}), nil
}

func (f *fakeRepo) ListUnsettledLoans(ctx context.Context) ([]model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.listLoans(func(l model.Loan) bool { return l.Status != model.LoanStatusRepaid }), nil
}

func (f *fakeRepo) ListOverdueLoans(ctx context.Context, now time.Time) ([]model.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.listLoans(func(l model.Loan) bool {
		return l.Status == model.LoanStatusOverdue || (l.Status == model.LoanStatusActive && l.DueDate.Before(now))
	}), nil
}

func (f *fakeRepo) ListRepayments(ctx context.Context, loanID int64) ([]model.Repayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.getLoan(loanID); err != nil {
		return nil, err
	}
	var res []model.Repayment
	for _, rp := range f.repayments {
		if rp.LoanID == loanID {
			res = append(res, rp)
		}
	}
	return res, nil
}

func (f *fakeRepo) SumLoansByMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := decimal.Zero
	for _, l := range f.listLoans(func(l model.Loan) bool { return l.MemberID == memberID }) {
		total = total.Add(l.Amount)
	}
	return total, nil
}

func (f *fakeRepo) getGroup(id int64) (*model.RotatingGroup, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, repository.ErrGroupNotFound
	}
	res := *g
	res.MemberIDs = slices.Clone(g.MemberIDs)
	if res.MemberIDs == nil {
		res.MemberIDs = []int64{}
	}
	return &res, nil
}

func (f *fakeRepo) CreateGroup(ctx context.Context, g *model.RotatingGroup) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	g.ID = f.id()
	stored := *g
	stored.MemberIDs = slices.Clone(g.MemberIDs)
	f.groups[g.ID] = &stored
	return nil
}

func (f *fakeRepo) GetGroup(ctx context.Context, id int64) (*model.RotatingGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getGroup(id)
}

func (f *fakeRepo) ListGroups(ctx context.Context) ([]model.RotatingGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var res []model.RotatingGroup
	for id := range f.groups {
		g, _ := f.getGroup(id)
		res = append(res, *g)
	}
	slices.SortFunc(res, func(a, b model.RotatingGroup) int { return int(a.ID - b.ID) })
	return res, nil
}

func (f *fakeRepo) UpdateGroup(ctx context.Context, id int64, fn func(g *model.RotatingGroup) error) (*model.RotatingGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.getGroup(id)
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	stored := *g
	stored.MemberIDs = slices.Clone(g.MemberIDs)
	f.groups[id] = &stored
	return g, nil
}

func (f *fakeRepo) DeleteGroup(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.groups[id]; !ok {
		return repository.ErrGroupNotFound
	}
	for rid, rd := range f.rounds {
		if rd.GroupID == id && f.roundUsed(rid) {
			return repository.ErrLedgerNotEmpty
		}
	}
	delete(f.groups, id)
	for rid, rd := range f.rounds {
		if rd.GroupID == id {
			delete(f.rounds, rid)
		}
	}
	return nil
}

func (f *fakeRepo) roundUsed(roundID int64) bool {
	for _, c := range f.contributions {
		if c.RoundID == roundID {
			return true
		}
	}
	for _, p := range f.penalties {
		if p.RoundID == roundID {
			return true
		}
	}
	return false
}

func (f *fakeRepo) AddGroupMember(ctx context.Context, groupID, memberID int64, check func(g *model.RotatingGroup) error) (*model.RotatingGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.getGroup(groupID)
	if err != nil {
		return nil, err
	}
	if err := check(g); err != nil {
		return nil, err
	}
	g.MemberIDs = append(g.MemberIDs, memberID)
	stored := *g
	stored.MemberIDs = slices.Clone(g.MemberIDs)
	f.groups[groupID] = &stored
	return g, nil
}

func (f *fakeRepo) RemoveGroupMember(ctx context.Context, groupID, memberID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, ok := f.groups[groupID]
	if !ok {
		return repository.ErrGroupNotFound
	}
	i := slices.Index(g.MemberIDs, memberID)
	if i < 0 {
		return repository.ErrGroupMemberNotFound
	}
	g.MemberIDs = slices.Delete(g.MemberIDs, i, i+1)
	return nil
}

func (f *fakeRepo) listRounds(groupID int64) []model.Round {
	var res []model.Round
	for _, rd := range f.rounds {
		if rd.GroupID == groupID {
			res = append(res, *rd)
		}
	}
	slices.SortFunc(res, func(a, b model.Round) int {
		if a.RoundNumber != b.RoundNumber {
			return a.RoundNumber - b.RoundNumber
		}
		return int(a.ID - b.ID)
	})
	return res
}

func (f *fakeRepo) CreateRound(ctx context.Context, groupID int64, build func(g *model.RotatingGroup, existing []model.Round) (*model.Round, error)) (*model.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.getGroup(groupID)
	if err != nil {
		return nil, err
	}
	rd, err := build(g, f.listRounds(groupID))
	if err != nil {
		return nil, err
	}
	rd.ID = f.id()
	rd.GroupID = groupID
	stored := *rd
	f.rounds[rd.ID] = &stored
	return rd, nil
}

func (f *fakeRepo) getRound(id int64) (*model.Round, error) {
	rd, ok := f.rounds[id]
	if !ok {
		return nil, repository.ErrRoundNotFound
	}
	res := *rd
	return &res, nil
}

func (f *fakeRepo) GetRound(ctx context.Context, id int64) (*model.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getRound(id)
}

func (f *fakeRepo) ListRounds(ctx context.Context, groupID int64) ([]model.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.getGroup(groupID); err != nil {
		return nil, err
	}
	return f.listRounds(groupID), nil
}

func (f *fakeRepo) UpdateRound(ctx context.Context, id int64, fn func(rd *model.Round) error) (*model.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rd, err := f.getRound(id)
	if err != nil {
		return nil, err
	}
	if err := fn(rd); err != nil {
		return nil, err
	}
	stored := *rd
	f.rounds[id] = &stored
	return rd, nil
}

func (f *fakeRepo) DeleteRound(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rounds[id]; !ok {
		return repository.ErrRoundNotFound
	}
	if f.roundUsed(id) {
		return repository.ErrLedgerNotEmpty
	}
	delete(f.rounds, id)
	return nil
}

func (f *fakeRepo) CreateContribution(ctx context.Context, c *model.Contribution, unique bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.getRound(c.RoundID); err != nil {
		return err
	}
	if unique {
		for _, existing := range f.contributions {
			if existing.RoundID == c.RoundID && existing.MemberID == c.MemberID {
				return repository.ErrDuplicateContribution
			}
		}
	}
	c.ID = f.id()
	stored := *c
	f.contributions[c.ID] = &stored
	return nil
}

func (f *fakeRepo) GetContribution(ctx context.Context, id int64) (*model.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.contributions[id]
	if !ok {
		return nil, repository.ErrContributionNotFound
	}
	res := *c
	return &res, nil
}

func (f *fakeRepo) UpdateContribution(ctx context.Context, id int64, fn func(c *model.Contribution) error) (*model.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.contributions[id]
	if !ok {
		return nil, repository.ErrContributionNotFound
	}
	res := *c
	if err := fn(&res); err != nil {
		return nil, err
	}
	stored := res
	f.contributions[id] = &stored
	return &res, nil
}

func (f *fakeRepo) DeleteContribution(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.contributions[id]; !ok {
		return repository.ErrContributionNotFound
	}
	delete(f.contributions, id)
	return nil
}

func (f *fakeRepo) contributionsWhere(keep func(c model.Contribution) bool) []model.Contribution {
	var res []model.Contribution
	for _, c := range f.contributions {
		if keep(*c) {
			res = append(res, *c)
		}
	}
	slices.SortFunc(res, func(a, b model.Contribution) int { return int(a.ID - b.ID) })
	return res
}

func (f *fakeRepo) ListContributionsByRound(ctx context.Context, roundID int64) ([]model.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contributionsWhere(func(c model.Contribution) bool { return c.RoundID == roundID }), nil
}

func (f *fakeRepo) ListContributionsByMember(ctx context.Context, memberID int64) ([]model.Contribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contributionsWhere(func(c model.Contribution) bool { return c.MemberID == memberID }), nil
}

func (f *fakeRepo) CreatePenalty(ctx context.Context, p *model.Penalty) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p.ID = f.id()
	stored := *p
	f.penalties[p.ID] = &stored
	return nil
}

func (f *fakeRepo) GetPenalty(ctx context.Context, id int64) (*model.Penalty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.penalties[id]
	if !ok {
		return nil, repository.ErrPenaltyNotFound
	}
	res := *p
	return &res, nil
}

func (f *fakeRepo) UpdatePenalty(ctx context.Context, id int64, fn func(p *model.Penalty) error) (*model.Penalty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.penalties[id]
	if !ok {
		return nil, repository.ErrPenaltyNotFound
	}
	res := *p
	if err := fn(&res); err != nil {
		return nil, err
	}
	stored := res
	f.penalties[id] = &stored
	return &res, nil
}

func (f *fakeRepo) DeletePenalty(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.penalties[id]; !ok {
		return repository.ErrPenaltyNotFound
	}
	delete(f.penalties, id)
	return nil
}

func (f *fakeRepo) penaltiesWhere(keep func(p model.Penalty) bool) []model.Penalty {
	var res []model.Penalty
	for _, p := range f.penalties {
		if keep(*p) {
			res = append(res, *p)
		}
	}
	slices.SortFunc(res, func(a, b model.Penalty) int { return int(a.ID - b.ID) })
	return res
}

func (f *fakeRepo) ListPenaltiesByRound(ctx context.Context, roundID int64) ([]model.Penalty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.penaltiesWhere(func(p model.Penalty) bool { return p.RoundID == roundID }), nil
}

func (f *fakeRepo) ListPenaltiesByMember(ctx context.Context, memberID int64) ([]model.Penalty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.penaltiesWhere(func(p model.Penalty) bool { return p.MemberID == memberID }), nil
}

func (f *fakeRepo) SumContributionsByMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := decimal.Zero
	for _, c := range f.contributionsWhere(func(c model.Contribution) bool { return c.MemberID == memberID }) {
		total = total.Add(c.Amount)
	}
	return total, nil
}

func (f *fakeRepo) SumPenaltiesByMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := decimal.Zero
	for _, p := range f.penaltiesWhere(func(p model.Penalty) bool { return p.MemberID == memberID }) {
		total = total.Add(p.Amount)
	}
	return total, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	res := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		res = append(res, e.Type)
	}
	return res
}

var testNow = time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)

func newTestService(opts Options) (*Service, *fakeRepo, *recordingPublisher) {
	repo := newFakeRepo()
	pub := &recordingPublisher{}
	svc := NewService(repo, pub, opts)
	svc.now = func() time.Time { return testNow }
	return svc, repo, pub
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
