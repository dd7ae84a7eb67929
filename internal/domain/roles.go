package domain

import "strings"

// UserRole описывает тариф пользователя.
type UserRole string

const (
	UserRoleFree      UserRole = "free"
	UserRoleStart     UserRole = "start"
	UserRolePro       UserRole = "pro"
	UserRoleDeveloper UserRole = "developer"
)

// UserPlan описывает ограничения и помесячное пополнение тарифа.
type UserPlan struct {
	Role          UserRole
	Name          string
	MonthlyTokens int64
	ProjectLimit  int
	// LowBalanceAt — порог, ниже которого пользователю отправляется
	// уведомление о низком балансе.
	LowBalanceAt int64
}

var plans = map[UserRole]UserPlan{
	UserRoleFree: {
		Role:          UserRoleFree,
		Name:          "Free",
		MonthlyTokens: 300,
		ProjectLimit:  1,
		LowBalanceAt:  100,
	},
	UserRoleStart: {
		Role:          UserRoleStart,
		Name:          "Start",
		MonthlyTokens: 2000,
		ProjectLimit:  3,
		LowBalanceAt:  300,
	},
	UserRolePro: {
		Role:          UserRolePro,
		Name:          "Pro",
		MonthlyTokens: 8000,
		ProjectLimit:  10,
		LowBalanceAt:  500,
	},
	UserRoleDeveloper: {
		Role:          UserRoleDeveloper,
		Name:          "Developer",
		MonthlyTokens: 0,
		ProjectLimit:  0,
		LowBalanceAt:  0,
	},
}

// PlanForRole возвращает тариф для роли.
func PlanForRole(role UserRole) UserPlan {
	if plan, ok := plans[UserRole(strings.ToLower(string(role)))]; ok {
		return plan
	}
	return plans[UserRoleFree]
}

// Plan возвращает тариф пользователя.
func (u User) Plan() UserPlan {
	return PlanForRole(u.Role)
}
