package school

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("school")
	ErrMemberNotFound = core.NewNotFoundError("school member")
	ErrAlreadyMember  = errors.New("user is already a member of this school")
	ErrSelfDelete     = errors.New("you cannot remove your own membership")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, s School, exec ...core.DBExecutor) (School, error)
		SlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error)
		GetSchool(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (School, error)
		QuerySchools(ctx context.Context, exec ...core.DBExecutor) ([]School, error)
		UpdateSchool(ctx context.Context, s School, exec ...core.DBExecutor) (School, error)
		DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateMember(ctx context.Context, m Member, exec ...core.DBExecutor) (Member, error)
		GetMember(ctx context.Context, filter MemberGetFilter, exec ...core.DBExecutor) (Member, error)
		GetMemberDetail(ctx context.Context, id string, exec ...core.DBExecutor) (MemberDetail, error)
		// QueryMembers returns one page of the school members matching filter, plus the total match count.
		QueryMembers(ctx context.Context, schoolID string, filter MemberFilter, page core.Page, exec ...core.DBExecutor) ([]MemberDetail, int, error)
		CountMembers(ctx context.Context, schoolID string, filter MemberFilter, exec ...core.DBExecutor) (int, error)
		QueryMemberships(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Member, error)
		UpdateMember(ctx context.Context, m Member, exec ...core.DBExecutor) (Member, error)
		DeleteMember(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service struct {
		db         core.DBTransactor
		repo       Repository
		usrSvc     *user.Service
		usrRepo    user.Repository
		profileSvc *profile.Service
		mailSvc    core.EmailService
		conf       *core.Config
	}
)

func NewService(
	db core.DBTransactor,
	repo Repository,
	usrSvc *user.Service,
	usrRepo user.Repository,
	profileSvc *profile.Service,
	mailSvc core.EmailService,
	conf *core.Config,
) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		usrSvc:     usrSvc,
		usrRepo:    usrRepo,
		profileSvc: profileSvc,
		mailSvc:    mailSvc,
		conf:       conf,
	}
}

// uniqueSlug slugifies name, appending a random 4 chars suffix until the slug is free.
func (svc *Service) uniqueSlug(ctx context.Context, name string, exec ...core.DBExecutor) (string, error) {
	base := core.Slugify(name)
	if base == "" {
		base = "school"
	}
	slug := base
	for {
		exists, err := svc.repo.SlugExists(ctx, slug, exec...)
		if err != nil {
			return "", errors.Wrap(err, "checking slug")
		}
		if !exists {
			return slug, nil
		}
		slug = base + "-" + core.RandomString(4)
	}
}

// Create creates a School and makes its owner an admin member.
func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	owner, err := svc.usrSvc.GetByID(ctx, ns.OwnerID)
	if err != nil {
		if core.IsNotFound(err) {
			return School{}, core.NewValidationError(err, core.FieldError{Field: "owner_id", Error: err.Error()})
		}
		return School{}, errors.Wrap(err, "finding owner")
	}

	var sch School
	err = svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		slug, err := svc.uniqueSlug(ctx, ns.Name, exec)
		if err != nil {
			return err
		}
		sch, err = svc.repo.CreateSchool(ctx, School{
			Name:           ns.Name,
			Slug:           slug,
			OwnerID:        owner.ID,
			Email:          ns.Email,
			Telephone:      ns.Telephone,
			Slogan:         ns.Slogan,
			Theme:          "default",
			PrimaryColor:   "#0d6efd",
			SecondaryColor: "#6c757d",
			ThemeMode:      "light",
			CreatedAt:      time.Now().UTC(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating school")
		}
		_, err = svc.repo.CreateMember(ctx, Member{
			SchoolID:  sch.ID,
			UserID:    owner.ID,
			Role:      RoleAdmin,
			CreatedAt: sch.CreatedAt,
		}, exec)
		return errors.Wrap(err, "creating owner membership")
	})
	return sch, err
}

func (svc *Service) Query(ctx context.Context) ([]School, error) {
	return svc.repo.QuerySchools(ctx)
}

func (svc *Service) GetBySlug(ctx context.Context, slug string) (School, error) {
	return svc.repo.GetSchool(ctx, GetFilter{Slug: core.CleanString(slug, true /* lower */)})
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, GetFilter{ID: id})
}

func (svc *Service) UpdateSettings(ctx context.Context, sch School, us UpdateSettings) (School, error) {
	sch.Name = us.Name
	sch.Email = us.Email
	sch.Telephone = us.Telephone
	sch.Slogan = us.Slogan
	return svc.repo.UpdateSchool(ctx, sch)
}

func (svc *Service) UpdateAppearance(ctx context.Context, sch School, ua UpdateAppearance) (School, error) {
	if ua.Theme != "" {
		sch.Theme = ua.Theme
	}
	if ua.PrimaryColor != "" {
		sch.PrimaryColor = ua.PrimaryColor
	}
	if ua.SecondaryColor != "" {
		sch.SecondaryColor = ua.SecondaryColor
	}
	if ua.ThemeMode != "" {
		sch.ThemeMode = ua.ThemeMode
	}
	return svc.repo.UpdateSchool(ctx, sch)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteSchool(ctx, id)
}

// GetMember returns the membership of userID in schoolID.
func (svc *Service) GetMember(ctx context.Context, schoolID, userID string) (Member, error) {
	return svc.repo.GetMember(ctx, MemberGetFilter{SchoolID: schoolID, UserID: userID})
}

func (svc *Service) GetMemberByID(ctx context.Context, id string) (Member, error) {
	return svc.repo.GetMember(ctx, MemberGetFilter{ID: id})
}

func (svc *Service) GetMemberDetail(ctx context.Context, id string) (MemberDetail, error) {
	return svc.repo.GetMemberDetail(ctx, id)
}

func (svc *Service) Memberships(ctx context.Context, userID string) ([]Member, error) {
	return svc.repo.QueryMemberships(ctx, userID)
}

// AddMember registers an existing user in the school.
func (svc *Service) AddMember(ctx context.Context, schoolID, userID, role string) (Member, error) {
	if _, err := svc.GetMember(ctx, schoolID, userID); err == nil {
		return Member{}, core.NewValidationError(ErrAlreadyMember)
	} else if !core.IsNotFound(err) {
		return Member{}, errors.Wrap(err, "checking membership")
	}
	return svc.repo.CreateMember(ctx, Member{
		SchoolID:  schoolID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) QueryMembers(ctx context.Context, schoolID string, filter MemberFilter, pageNum int) ([]MemberDetail, core.PageInfo, error) {
	page := core.Page{Number: pageNum, Size: MembersPageSize}
	if page.Number < 1 {
		page.Number = 1
	}
	members, total, err := svc.repo.QueryMembers(ctx, schoolID, filter, page)
	if err != nil {
		return nil, core.PageInfo{}, errors.Wrap(err, "querying members")
	}
	return members, core.NewPageInfo(page, total), nil
}

func (svc *Service) CountMembers(ctx context.Context, schoolID string, filter MemberFilter) (int, error) {
	return svc.repo.CountMembers(ctx, schoolID, filter)
}

// CreateUser creates a user, its profile and its membership of sch in one transaction,
// then emails the credentials. nu must have been validated.
func (svc *Service) CreateUser(ctx context.Context, sch School, nu NewSchoolUser) (MemberDetail, error) {
	if err := svc.usrSvc.CheckUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return MemberDetail{}, err
	}
	pwd := nu.Password
	if pwd == "" {
		pwd = svc.conf.DefaultUserPassword
	}

	var md MemberDetail
	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		usr, err := svc.usrSvc.Create(ctx, user.NewUser{
			Name:     nu.Name,
			Username: nu.Username,
			Email:    nu.Email,
			Password: pwd,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		if _, err = svc.profileSvc.GetOrCreate(ctx, usr.ID, exec); err != nil {
			return err
		}
		m, err := svc.repo.CreateMember(ctx, Member{
			SchoolID:  sch.ID,
			UserID:    usr.ID,
			Role:      nu.Role,
			Phone:     nu.Phone,
			CreatedAt: time.Now().UTC(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating membership")
		}
		md = MemberDetail{Member: m, Name: usr.Name, Username: usr.Username, Email: usr.Email, IsActive: usr.IsActive}
		return nil
	})
	if err != nil {
		return MemberDetail{}, err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: md.Name, Address: md.Email}},
		Subject:      "Welcome to " + sch.Name,
		TemplateName: "welcome",
		TemplateData: map[string]interface{}{
			"Name":       md.Name,
			"Username":   md.Username,
			"Password":   pwd,
			"SchoolName": sch.Name,
			"SchoolSlug": sch.Slug,
		},
	})
	return md, nil
}

// UpdateUser edits a membership together with its user. uu must have been validated.
func (svc *Service) UpdateUser(ctx context.Context, m Member, uu UpdateSchoolUser) (MemberDetail, error) {
	usr, err := svc.usrSvc.GetByID(ctx, m.UserID)
	if err != nil {
		return MemberDetail{}, errors.Wrap(err, "finding user")
	}
	if uu.Email != "" && uu.Email != usr.Email {
		if err = svc.usrSvc.CheckUniqueness(ctx, usr.Username, uu.Email, usr); err != nil {
			return MemberDetail{}, err
		}
		usr.Email = uu.Email
	}
	if uu.Name != "" {
		usr.Name = uu.Name
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Role != "" {
		m.Role = uu.Role
	}
	if uu.Phone != "" {
		m.Phone = uu.Phone
	}
	if uu.Credits != nil {
		m.Credits = core.Round(*uu.Credits, 2)
	}
	usr.UpdatedAt = time.Now().UTC()

	err = svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		if usr, err = svc.usrRepo.UpdateUser(ctx, usr, exec); err != nil {
			return errors.Wrap(err, "updating user")
		}
		m, err = svc.repo.UpdateMember(ctx, m, exec)
		return errors.Wrap(err, "updating membership")
	})
	if err != nil {
		return MemberDetail{}, err
	}
	return MemberDetail{Member: m, Name: usr.Name, Username: usr.Username, Email: usr.Email, IsActive: usr.IsActive}, nil
}

// DeleteMember removes a membership. The user account itself is kept.
func (svc *Service) DeleteMember(ctx context.Context, requester, m Member) error {
	if requester.ID == m.ID {
		return core.NewValidationError(ErrSelfDelete)
	}
	return svc.repo.DeleteMember(ctx, m.ID)
}
