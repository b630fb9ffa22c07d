package main

import (
	"context"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
)

// addSchool creates a school owned by the user matching owner; the owner becomes its admin.
func (cli *commandLine) addSchool(name, owner string) (school.School, error) {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{core.CleanString(owner, true /* lower */)}})
	if err != nil {
		return school.School{}, err
	}

	ns := school.NewSchool{Name: name, OwnerID: usr.ID}
	if err = ns.Validate(cli.validate); err != nil {
		return school.School{}, err
	}
	return cli.schoolSvc.Create(ctx, ns)
}
