package model

// 用户身份由外部认证系统签发的JWT提供，本服务只消费角色声明，不存储凭据。
type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)
